package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"intel-registry/deploy/migrations"
)

var embeddedMigrations fs.FS = migrations.Files

const (
	createSchemaTableSQL = `CREATE TABLE IF NOT EXISTS registry_schema (
    id TINYINT NOT NULL PRIMARY KEY,
    version INT NOT NULL,
    updated_at BIGINT NOT NULL
) ENGINE=InnoDB`
	selectSchemaVersionSQL = `SELECT version FROM registry_schema WHERE id = 1`
	upsertSchemaVersionSQL = `INSERT INTO registry_schema (id, version, updated_at) VALUES (1, ?, ?)
    ON DUPLICATE KEY UPDATE version = VALUES(version), updated_at = VALUES(updated_at)`
)

// schemaStep 是一个编号的迁移文件，文件名形如 0001_xxx.sql。
type schemaStep struct {
	version    int
	name       string
	statements []string
}

// migrate 将键值表升级到内置迁移的最新版本。
// MySQL 的 DDL 会隐式提交，迁移语句必须可重复执行；版本号在每一步成功后推进。
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSchemaTableSQL); err != nil {
		return fmt.Errorf("创建 registry_schema 表失败: %w", err)
	}
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	steps, err := loadSchemaSteps(embeddedMigrations)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		for _, stmt := range step.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("执行迁移 %s 失败: %w", step.name, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, upsertSchemaVersionSQL, step.version, s.now().Unix()); err != nil {
			return fmt.Errorf("记录 schema 版本 %d 失败: %w", step.version, err)
		}
		current = step.version
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, selectSchemaVersionSQL).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取 schema 版本失败: %w", err)
	}
	return version, nil
}

func loadSchemaSteps(fsys fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}
	steps := make([]schemaStep, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("迁移文件 %s 缺少版本前缀", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("迁移文件 %s 的版本前缀无效", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移文件 %s 与 %s 版本重复", name, other)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		steps = append(steps, schemaStep{version: version, name: name, statements: splitStatements(string(content))})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

func splitStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
