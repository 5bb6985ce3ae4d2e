package storage

import (
	"context"
	"sort"
	"strings"

	xerrors "intel-registry/internal/errors"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "key not found")

// Store 抽象了登记簿依赖的持久化键值存储。
//
// Apply 必须原子地提交整批写入：要么全部可见，要么全部不可见。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Apply(ctx context.Context, batch *Batch) error
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// Op 是批次中的单个写操作。Value 为 nil 表示删除。
type Op struct {
	Key   string
	Value []byte
}

// Delete 判断该操作是否为删除。
func (o Op) Delete() bool { return o.Value == nil }

// Batch 收集一次变更的完整写集合。同一个键的后写覆盖先写。
type Batch struct {
	ops   []Op
	index map[string]int
}

// NewBatch 创建空批次。
func NewBatch() *Batch {
	return &Batch{index: make(map[string]int)}
}

// Put 写入键值。
func (b *Batch) Put(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	b.set(Op{Key: key, Value: append([]byte(nil), value...)})
}

// Delete 删除键。
func (b *Batch) Delete(key string) {
	b.set(Op{Key: key})
}

func (b *Batch) set(op Op) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[op.Key]; ok {
		b.ops[i] = op
		return
	}
	b.index[op.Key] = len(b.ops)
	b.ops = append(b.ops, op)
}

// Lookup 返回批次中尚未提交的值，用于变更内部的读己之写。
func (b *Batch) Lookup(key string) (Op, bool) {
	if b == nil {
		return Op{}, false
	}
	i, ok := b.index[key]
	if !ok {
		return Op{}, false
	}
	return b.ops[i], true
}

// Ops 按写入顺序返回操作列表。
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}

// Len 返回批次中的键数量。
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// SortedKeys 按字典序返回键，便于后端以确定顺序提交。
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPrefix 为空前缀匹配所有键。
func HasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
