package redis

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/storage"
)

// Config 描述 Redis 存储的连接参数。
type Config struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
	ScanCount int64  `mapstructure:"scan_count"`
}

// Store 使用 Redis 字符串键实现 storage.Store。
type Store struct {
	client    goredis.UniversalClient
	namespace string
	scanCount int64
}

var _ storage.Store = (*Store)(nil)

// Open 创建客户端并检查连通性。
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return NewWithClient(client, cfg.Namespace, cfg.ScanCount), nil
}

// NewWithClient 使用已有客户端构造存储。
func NewWithClient(client goredis.UniversalClient, namespace string, scanCount int64) *Store {
	if namespace == "" {
		namespace = "intelreg"
	}
	if scanCount <= 0 {
		scanCount = 256
	}
	return &Store{client: client, namespace: strings.TrimSuffix(namespace, ":") + ":", scanCount: scanCount}
}

// Get 实现 storage.Store。
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.namespaced(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 键失败")
	}
	return value, nil
}

// Apply 通过 MULTI/EXEC 原子提交整批写入。
func (s *Store) Apply(ctx context.Context, batch *storage.Batch) error {
	ops := batch.Ops()
	if len(ops) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete() {
				pipe.Del(ctx, s.namespaced(op.Key))
				continue
			}
			pipe.Set(ctx, s.namespaced(op.Key), op.Value, 0)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交 Redis 事务失败")
	}
	return nil
}

// Scan 收集前缀下的键后按字典序回调。
func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	pattern := s.namespace + escapeGlob(prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, s.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描 Redis 键失败")
	}
	sort.Strings(keys)

	for _, full := range keys {
		value, err := s.client.Get(ctx, full).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 键失败")
		}
		if err := fn(strings.TrimPrefix(full, s.namespace), value); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭 Redis 客户端。
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) namespaced(key string) string {
	return s.namespace + key
}

func escapeGlob(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
