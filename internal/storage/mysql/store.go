package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/storage"
)

const (
	selectValueSQL = `SELECT v FROM registry_kv WHERE k = ?`
	upsertValueSQL = `INSERT INTO registry_kv (k, v, updated_at) VALUES (?, ?, ?)
    ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = VALUES(updated_at)`
	deleteValueSQL = `DELETE FROM registry_kv WHERE k = ?`
	scanPrefixSQL  = `SELECT k, v FROM registry_kv WHERE k LIKE ? ORDER BY k`
)

// Store 基于 MySQL 的键值表实现 storage.Store。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open 建立连接并执行内置迁移。
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行 MySQL 迁移失败")
	}
	return store, nil
}

// Get 实现 storage.Store。
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, selectValueSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, wrapMySQLError(err, "读取登记簿记录失败")
	}
	return value, nil
}

// Apply 在单个事务中提交批次，任一语句失败则整体回滚。
func (s *Store) Apply(ctx context.Context, batch *storage.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapMySQLError(err, "开启事务失败")
	}
	updatedAt := s.now().UnixNano()
	for _, op := range batch.Ops() {
		if op.Delete() {
			_, err = tx.ExecContext(ctx, deleteValueSQL, op.Key)
		} else {
			_, err = tx.ExecContext(ctx, upsertValueSQL, op.Key, op.Value, updatedAt)
		}
		if err != nil {
			tx.Rollback()
			return wrapMySQLError(err, "写入登记簿记录失败", xerrors.WithMetadata("key", op.Key))
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapMySQLError(err, "提交事务失败")
	}
	return nil
}

// Scan 按键序遍历前缀下的记录。
func (s *Store) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	rows, err := s.db.QueryContext(ctx, scanPrefixSQL, likePrefix(prefix))
	if err != nil {
		return wrapMySQLError(err, "查询登记簿前缀失败")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return wrapMySQLError(err, "解析登记簿记录失败")
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return wrapMySQLError(err, "遍历登记簿记录失败")
	}
	return nil
}

// Close 关闭连接池。
func (s *Store) Close() error {
	return s.db.Close()
}

func likePrefix(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}

func wrapMySQLError(err error, message string, opts ...xerrors.Option) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		opts = append(opts, xerrors.WithMetadata("mysql_errno", strconv.Itoa(int(mysqlErr.Number))))
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message, opts...)
}
