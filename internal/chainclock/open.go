package chainclock

import (
	"context"
	"strings"

	xerrors "intel-registry/internal/errors"
)

// Config 描述时钟来源。
type Config struct {
	Driver      string `mapstructure:"driver"`
	StartHeight uint64 `mapstructure:"start_height"`
	ChainConfig string `mapstructure:"chain_config"`
	Chain       string `mapstructure:"chain"`
	RPCURL      string `mapstructure:"rpc_url"`
}

// Open 根据配置创建时钟，返回的 closer 总是非空。
func Open(ctx context.Context, cfg Config) (Clock, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "local":
		return NewLocalClock(cfg.StartHeight), func() {}, nil
	case "evm":
		defs, err := LoadChainDefinitions(cfg.ChainConfig)
		if err != nil {
			return nil, nil, err
		}
		if len(defs.Chains) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
			defs.Chains["default"] = ChainDefinition{Type: "evm", RPCURL: cfg.RPCURL}
		}
		name, def, err := defs.Resolve(cfg.Chain)
		if err != nil {
			return nil, nil, err
		}
		clock, err := DialEVM(ctx, name, def)
		if err != nil {
			return nil, nil, err
		}
		return clock, clock.Close, nil
	default:
		return nil, nil, xerrors.Newf(xerrors.CodeInitializationFailure, "不支持的时钟驱动 %s", cfg.Driver)
	}
}
