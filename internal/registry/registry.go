package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"intel-registry/internal/chainclock"
	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/events"
	"intel-registry/internal/observability/alerting"
	"intel-registry/internal/observability/metrics"
	"intel-registry/internal/storage"
	"intel-registry/pkg/logger"
)

// Options 配置登记簿的协作组件，除 Owner 外均可为空。
type Options struct {
	// Owner 是拥有无条件驳回权限的身份。
	Owner string
	// Clock 在调用未携带 Tick 时提供高度与时间戳。
	Clock chainclock.Clock
	// Events 接收已提交变更的通知。
	Events events.Publisher
	// Metrics 记录操作结果。
	Metrics *metrics.Recorder
	// Alerts 接收需要告警的故障。
	Alerts alerting.Dispatcher
	// Logger 为运行日志，默认 logger.Named("registry")。
	Logger *slog.Logger
}

// Registry 是证明与证言登记簿。所有变更在写锁内串行执行并整体提交。
type Registry struct {
	mu     sync.RWMutex
	store  storage.Store
	owner  string
	clock  chainclock.Clock
	events events.Publisher
	stats  *metrics.Recorder
	alerts alerting.Dispatcher
	log    *slog.Logger
	// last 是已提交变更中最大的时钟读数，持久化于 meta/height。
	last chainclock.Tick
}

// New 创建登记簿。首次启动时持久化 Owner，之后配置的 Owner 必须与已存储的一致。
func New(ctx context.Context, store storage.Store, opts Options) (*Registry, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "登记簿存储未配置")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("registry")
	}
	r := &Registry{
		store:  store,
		clock:  opts.Clock,
		events: opts.Events,
		stats:  opts.Metrics,
		alerts: opts.Alerts,
		log:    log,
	}

	owner := strings.TrimSpace(opts.Owner)
	var stored string
	found, err := reader{store: store}.load(ctx, ownerKey, &stored)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取登记簿所有者失败")
	}
	switch {
	case found && owner != "" && owner != stored:
		return nil, xerrors.Newf(xerrors.CodeInitializationFailure, "配置的所有者 %s 与已存储的所有者 %s 不一致", owner, stored)
	case found:
		r.owner = stored
	case owner == "":
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "登记簿所有者不能为空")
	default:
		t := newTxn(store)
		if err := t.put(ownerKey, owner); err != nil {
			return nil, err
		}
		if err := t.commit(ctx); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "保存登记簿所有者失败")
		}
		r.owner = owner
	}
	if _, err := (reader{store: store}).load(ctx, heightKey, &r.last); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取登记簿高度失败")
	}
	if resumer, ok := r.clock.(chainclock.Resumer); ok {
		resumer.Resume(r.last)
	}
	log.Info("登记簿已初始化", slog.String("owner", r.owner), slog.Uint64("height", r.last.Height))
	return r, nil
}

// Owner 返回登记簿所有者。
func (r *Registry) Owner() string {
	return r.owner
}

// stamp 在写锁内补全调用的时钟读数。时钟给出的读数不低于已提交的最大读数，
// 调用方显式携带的 Tick 原样使用。
func (r *Registry) stamp(ctx context.Context, call Call) (Call, error) {
	if call.Tick != (chainclock.Tick{}) || r.clock == nil {
		return call, nil
	}
	tick, err := r.clock.Now(ctx)
	if err != nil {
		return call, err
	}
	call.Tick = maxTick(tick, r.last)
	return call, nil
}

// commit 提交写集合，并在读数前进时一并记录 meta/height。
func (r *Registry) commit(ctx context.Context, t *txn, tick chainclock.Tick) error {
	next := maxTick(r.last, tick)
	if next != r.last {
		if err := t.put(heightKey, next); err != nil {
			return err
		}
	}
	if err := t.commit(ctx); err != nil {
		return err
	}
	r.last = next
	return nil
}

func maxTick(a, b chainclock.Tick) chainclock.Tick {
	if b.Height > a.Height {
		a.Height = b.Height
	}
	if b.Timestamp > a.Timestamp {
		a.Timestamp = b.Timestamp
	}
	return a
}

// finish 记录一次操作的结果：指标、告警与失败日志。
func (r *Registry) finish(ctx context.Context, operation, proofID string, started time.Time, err error) {
	r.stats.ObserveOperation(operation, err, time.Since(started))
	if err == nil {
		return
	}
	if !xerrors.ShouldAlert(err) {
		r.log.Debug("登记簿操作被拒绝",
			slog.String("operation", operation),
			slog.String("proof_id", proofID),
			slog.String("code", string(xerrors.CodeOf(err))),
		)
		return
	}
	r.log.Error("登记簿操作失败",
		slog.String("operation", operation),
		slog.String("proof_id", proofID),
		slog.String("error", err.Error()),
	)
	if r.alerts != nil {
		if alertErr := r.alerts.Notify(ctx, alerting.FromError(operation, proofID, err)); alertErr != nil {
			r.log.Warn("发送告警失败", slog.String("error", alertErr.Error()))
		}
	}
}

// publish 投递已提交变更的事件，失败只记录日志与告警。
func (r *Registry) publish(ctx context.Context, evt events.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, evt); err != nil {
		r.stats.ObserveEventFailure(string(evt.Type))
		r.log.Warn("发布登记簿事件失败",
			slog.String("type", string(evt.Type)),
			slog.String("proof_id", evt.ProofID),
			slog.String("error", err.Error()),
		)
		if r.alerts != nil && xerrors.ShouldAlert(err) {
			_ = r.alerts.Notify(ctx, alerting.FromError("publish", evt.ProofID, err))
		}
	}
}
