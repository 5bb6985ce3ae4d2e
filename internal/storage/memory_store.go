package storage

import (
	"context"
	"sync"

	xerrors "intel-registry/internal/errors"
)

// MemoryStore 以内存方式保存键值，主要用于测试与单机部署。
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}
	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Apply 在单次加锁内提交整批写入。
func (m *MemoryStore) Apply(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "批次提交被取消")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}
	for _, op := range batch.Ops() {
		if op.Delete() {
			delete(m.data, op.Key)
			continue
		}
		m.data[op.Key] = op.Value
	}
	return nil
}

// Scan 按键的字典序遍历前缀下的所有条目。
func (m *MemoryStore) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errClosed()
	}
	snapshot := make(map[string][]byte)
	for k, v := range m.data {
		if HasPrefix(k, prefix) {
			snapshot[k] = append([]byte(nil), v...)
		}
	}
	m.mu.RUnlock()

	for _, k := range SortedKeys(snapshot) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len 返回键数量。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func errClosed() error {
	return xerrors.New(xerrors.CodeStorageFailure, "存储已关闭")
}
