package chainclock

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "intel-registry/internal/errors"
)

// ChainDefinitions 对应链配置文件 (configs/chains.yaml) 的结构。
type ChainDefinitions struct {
	Default string                     `yaml:"default"`
	Chains  map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition 描述单条链的端点。
type ChainDefinition struct {
	Type          string `yaml:"type"`
	RPCURL        string `yaml:"rpc_url"`
	Confirmations uint64 `yaml:"confirmations"`
	Description   string `yaml:"description"`
}

// LoadChainDefinitions 解析链配置文件，路径为空时返回空集合。
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取链配置失败")
	}
	return ParseChainDefinitions(content)
}

// ParseChainDefinitions 解析 YAML 内容。
func ParseChainDefinitions(content []byte) (ChainDefinitions, error) {
	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析链配置失败")
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}

// Resolve 返回指定名称的链；name 为空时依次使用 Default 与字典序第一条。
func (d ChainDefinitions) Resolve(name string) (string, ChainDefinition, error) {
	if name == "" {
		name = d.Default
	}
	if name == "" {
		names := make([]string, 0, len(d.Chains))
		for n := range d.Chains {
			names = append(names, n)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return "", ChainDefinition{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置任何链的 RPC 端点")
		}
		name = names[0]
	}
	def, ok := d.Chains[name]
	if !ok {
		return "", ChainDefinition{}, xerrors.Newf(xerrors.CodeInitializationFailure, "链 %s 未在配置中找到", name)
	}
	chainType := strings.ToLower(strings.TrimSpace(def.Type))
	if chainType != "" && chainType != "evm" {
		return "", ChainDefinition{}, xerrors.Newf(xerrors.CodeInitializationFailure, "链 %s 使用了不支持的类型 %s", name, def.Type)
	}
	return name, def, nil
}
