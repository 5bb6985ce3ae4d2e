package mysql

import (
	"context"
	"database/sql/driver"
	stdErrors "errors"
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/storage"
)

func newTestStore(t *testing.T, ops []mockOperation) (*Store, *queueDriver) {
	t.Helper()
	db, drv := newMockDB(t, ops)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, now: func() time.Time { return time.Unix(1700000000, 0) }}, drv
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	store, drv := newTestStore(t, []mockOperation{
		queryOp(selectValueSQL, mockRowsData{
			columns: []string{"v"},
			values:  [][]driver.Value{{[]byte(`{"proof_id":"p-1"}`)}},
		}),
	})
	defer drv.assertConsumed(t)

	value, err := store.Get(context.Background(), "proof/p-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(value) != `{"proof_id":"p-1"}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	store, drv := newTestStore(t, []mockOperation{
		queryOp(selectValueSQL, mockRowsData{columns: []string{"v"}}),
	})
	defer drv.assertConsumed(t)

	_, err := store.Get(context.Background(), "proof/none")
	if !stdErrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreApplyCommitsBatch(t *testing.T) {
	t.Parallel()

	store, drv := newTestStore(t, []mockOperation{
		beginOp(),
		execOp(upsertValueSQL, mockResult{rowsAffected: 1}),
		execOp(deleteValueSQL, mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertConsumed(t)

	batch := storage.NewBatch()
	batch.Put("proof/p-1", []byte("{}"))
	batch.Delete("stale")
	if err := store.Apply(context.Background(), batch); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
}

func TestStoreApplyRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, drv := newTestStore(t, []mockOperation{
		beginOp(),
		execOp(upsertValueSQL, mockResult{rowsAffected: 1}),
		failingExecOp(upsertValueSQL, &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}),
		rollbackOp(),
	})
	defer drv.assertConsumed(t)

	batch := storage.NewBatch()
	batch.Put("proof/p-1", []byte("{}"))
	batch.Put("source/abc", []byte("{}"))
	err := store.Apply(context.Background(), batch)
	if xerrors.CodeOf(err) != xerrors.CodeStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
	coded, _ := xerrors.From(err)
	if coded.Metadata()["mysql_errno"] != "1205" {
		t.Fatalf("expected errno metadata, got %v", coded.Metadata())
	}
	if coded.Metadata()["key"] != "source/abc" {
		t.Fatalf("expected failing key metadata, got %v", coded.Metadata())
	}
}

func TestStoreScan(t *testing.T) {
	t.Parallel()

	store, drv := newTestStore(t, []mockOperation{
		queryOp(scanPrefixSQL, mockRowsData{
			columns: []string{"k", "v"},
			values: [][]driver.Value{
				{[]byte("proof/a"), []byte("1")},
				{[]byte("proof/b"), []byte("2")},
			},
		}),
	})
	defer drv.assertConsumed(t)

	var keys []string
	err := store.Scan(context.Background(), "proof/", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if fmt.Sprint(keys) != "[proof/a proof/b]" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestLikePrefixEscapesWildcards(t *testing.T) {
	t.Parallel()

	if got := likePrefix(`intel/a_b%`); got != `intel/a\_b\%%` {
		t.Fatalf("unexpected pattern: %s", got)
	}
}

func TestStoreMigrateFreshSchema(t *testing.T) {
	t.Parallel()

	steps, err := loadSchemaSteps(embeddedMigrations)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(steps) != 1 || steps[0].version != 1 || len(steps[0].statements) != 1 {
		t.Fatalf("unexpected migration steps: %+v", steps)
	}

	store, drv := newTestStore(t, []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(selectSchemaVersionSQL, mockRowsData{columns: []string{"version"}}),
		execOp(steps[0].statements[0], mockResult{}),
		execOp(upsertSchemaVersionSQL, mockResult{rowsAffected: 1}),
	})
	defer drv.assertConsumed(t)

	if err := store.migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestStoreMigrateSkipsCurrentSchema(t *testing.T) {
	t.Parallel()

	store, drv := newTestStore(t, []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(selectSchemaVersionSQL, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{int64(1)}},
		}),
	})
	defer drv.assertConsumed(t)

	if err := store.migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestStoreMigrateStopsOnFailedStep(t *testing.T) {
	t.Parallel()

	steps, err := loadSchemaSteps(embeddedMigrations)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	store, drv := newTestStore(t, []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(selectSchemaVersionSQL, mockRowsData{columns: []string{"version"}}),
		failingExecOp(steps[0].statements[0], stdErrors.New("table locked")),
	})
	defer drv.assertConsumed(t)

	if err := store.migrate(context.Background()); err == nil {
		t.Fatal("expected migrate to fail")
	}
}

func TestLoadSchemaStepsOrdersAndValidates(t *testing.T) {
	t.Parallel()

	steps, err := loadSchemaSteps(fstest.MapFS{
		"0010_add_index.sql": {Data: []byte("CREATE INDEX a ON registry_kv (updated_at);")},
		"0002_widen_key.sql": {Data: []byte("ALTER TABLE registry_kv MODIFY k VARBINARY(512);;\n")},
		"README.md":          {Data: []byte("ignored")},
	})
	if err != nil {
		t.Fatalf("load steps: %v", err)
	}
	if len(steps) != 2 || steps[0].version != 2 || steps[1].version != 10 {
		t.Fatalf("unexpected order: %+v", steps)
	}
	if len(steps[0].statements) != 1 {
		t.Fatalf("expected empty statements to be dropped, got %q", steps[0].statements)
	}

	if _, err := loadSchemaSteps(fstest.MapFS{"create.sql": {Data: []byte("SELECT 1")}}); err == nil {
		t.Fatal("expected missing version prefix to fail")
	}
	if _, err := loadSchemaSteps(fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"1_b.sql":    {Data: []byte("SELECT 2")},
	}); err == nil {
		t.Fatal("expected duplicate versions to fail")
	}
}
