package chainclock

import (
	"context"
	"net/http"
	"sync"
	"time"

	xerrors "intel-registry/internal/errors"
)

// CodeClockFailure 表示无法从时钟源获取高度。
const CodeClockFailure xerrors.Code = "CLOCK_FAILURE"

func init() {
	xerrors.Register(CodeClockFailure, xerrors.Attributes{
		Message:    "clock source unavailable",
		Severity:   xerrors.SeverityCritical,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusServiceUnavailable,
	})
}

// Tick 是一次调用获得的逻辑高度与纳秒时间戳。
type Tick struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp_ns"`
}

// Clock 为登记簿提供单调不减的时钟。
type Clock interface {
	Now(ctx context.Context) (Tick, error)
}

// Resumer 由可以从持久化读数继续计数的时钟实现。
type Resumer interface {
	Resume(last Tick)
}

// LocalClock 每次调用将高度加一，时间戳取墙钟并保证不回退。
type LocalClock struct {
	mu   sync.Mutex
	last Tick
	now  func() time.Time
}

// NewLocalClock 创建从 startHeight 之后开始计数的本地时钟。
func NewLocalClock(startHeight uint64) *LocalClock {
	return &LocalClock{last: Tick{Height: startHeight}, now: time.Now}
}

// Now 实现 Clock 接口。
func (c *LocalClock) Now(ctx context.Context) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, xerrors.Wrap(CodeClockFailure, err, "获取本地时钟被取消")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixNano()
	if ts < c.last.Timestamp {
		ts = c.last.Timestamp
	}
	c.last = Tick{Height: c.last.Height + 1, Timestamp: ts}
	return c.last, nil
}

// Resume 让时钟从 last 之后继续，已超过 last 的读数保持不变。
func (c *LocalClock) Resume(last Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last.Height > c.last.Height {
		c.last.Height = last.Height
	}
	if last.Timestamp > c.last.Timestamp {
		c.last.Timestamp = last.Timestamp
	}
}

// Last 返回最近一次发出的 Tick。
func (c *LocalClock) Last() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// FixedClock 总是返回同一个 Tick，用于测试与重放。
type FixedClock struct {
	mu   sync.Mutex
	tick Tick
}

// NewFixedClock 创建固定时钟。
func NewFixedClock(tick Tick) *FixedClock {
	return &FixedClock{tick: tick}
}

// Now 实现 Clock 接口。
func (c *FixedClock) Now(context.Context) (Tick, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick, nil
}

// Set 调整后续返回的 Tick。
func (c *FixedClock) Set(tick Tick) {
	c.mu.Lock()
	c.tick = tick
	c.mu.Unlock()
}
