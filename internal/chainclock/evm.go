package chainclock

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	xerrors "intel-registry/internal/errors"
)

// HeaderReader 是 EVMClock 依赖的最小链接口，ethclient.Client 满足该接口。
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// EVMClock 以链头区块的高度与出块时间作为时钟。
//
// 链头回退（重组或切换节点）时沿用上一次的值，保证单调不减。
type EVMClock struct {
	name          string
	reader        HeaderReader
	confirmations uint64
	closer        func()

	mu   sync.Mutex
	last Tick
}

// NewEVMClock 使用已有的区块头读取器构造时钟。
func NewEVMClock(name string, reader HeaderReader, confirmations uint64) *EVMClock {
	return &EVMClock{name: name, reader: reader, confirmations: confirmations}
}

// DialEVM 连接链定义中的 RPC 端点。
func DialEVM(ctx context.Context, name string, def ChainDefinition) (*EVMClock, error) {
	rpcURL := strings.TrimSpace(def.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.Newf(xerrors.CodeInitializationFailure, "链 %s 未配置 RPC 地址", name)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接以太坊节点失败")
	}
	clock := NewEVMClock(name, client, def.Confirmations)
	clock.closer = client.Close
	if _, err := clock.Now(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return clock, nil
}

// Now 实现 Clock 接口。
func (c *EVMClock) Now(ctx context.Context) (Tick, error) {
	header, err := c.reader.HeaderByNumber(ctx, nil)
	if err != nil {
		return Tick{}, xerrors.Wrap(CodeClockFailure, err, "获取链头区块失败", xerrors.WithMetadata("chain", c.name))
	}
	if header == nil || header.Number == nil {
		return Tick{}, xerrors.New(CodeClockFailure, "链头区块为空", xerrors.WithMetadata("chain", c.name))
	}

	height := header.Number.Uint64()
	blockTime := int64(header.Time) * int64(time.Second)
	if c.confirmations > 0 {
		if height <= c.confirmations {
			height = 0
		} else {
			height -= c.confirmations
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.last.Height {
		height = c.last.Height
	}
	if blockTime < c.last.Timestamp {
		blockTime = c.last.Timestamp
	}
	c.last = Tick{Height: height, Timestamp: blockTime}
	return c.last, nil
}

// Name 返回链名称。
func (c *EVMClock) Name() string { return c.name }

// Close 释放 RPC 连接。
func (c *EVMClock) Close() {
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
}
