package registry

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/storage"
)

const (
	proofPrefix  = "proof/"
	attestPrefix = "attest/"
	intelPrefix  = "intel/"
	sourcePrefix = "source/"
	totalsKey    = "meta/totals"
	ownerKey     = "meta/owner"
	heightKey    = "meta/height"
)

func proofKey(id string) string  { return proofPrefix + id }
func attestKey(id string) string { return attestPrefix + id }

// 索引键统一使用小写十六进制，使大小写不同的同一哈希落在同一条目。
func intelKey(hash string) string  { return intelPrefix + strings.ToLower(hash) }
func sourceKey(hash string) string { return sourcePrefix + strings.ToLower(hash) }

// reader 从存储读取并解码 JSON 记录。
type reader struct {
	store storage.Store
}

func (r reader) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.store.Get(ctx, key)
	if stdErrors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err, "读取记录失败", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析记录失败", xerrors.WithMetadata("key", key))
	}
	return true, nil
}

// txn 收集一次变更的写集合，读取时优先返回批次内尚未提交的值。
type txn struct {
	reader
	batch *storage.Batch
}

func newTxn(store storage.Store) *txn {
	return &txn{reader: reader{store: store}, batch: storage.NewBatch()}
}

func (t *txn) load(ctx context.Context, key string, v any) (bool, error) {
	if op, ok := t.batch.Lookup(key); ok {
		if op.Delete() {
			return false, nil
		}
		if err := json.Unmarshal(op.Value, v); err != nil {
			return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析记录失败", xerrors.WithMetadata("key", key))
		}
		return true, nil
	}
	return t.reader.load(ctx, key, v)
}

func (t *txn) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化记录失败", xerrors.WithMetadata("key", key))
	}
	t.batch.Put(key, data)
	return nil
}

func (t *txn) commit(ctx context.Context) error {
	if t.batch.Len() == 0 {
		return nil
	}
	if err := t.store.Apply(ctx, t.batch); err != nil {
		return storageError(err, "提交登记簿批次失败", "")
	}
	return nil
}

func storageError(err error, message, key string) error {
	if xerrors.CodeOf(err) == xerrors.CodeStorageFailure {
		return err
	}
	opts := []xerrors.Option{}
	if key != "" {
		opts = append(opts, xerrors.WithMetadata("key", key))
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message, opts...)
}
