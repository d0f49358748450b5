package repository

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"rpkimon/internal/infrastructure/persistence/relational/model"
	"rpkimon/internal/infrastructure/persistence/relational/uow"
)

// setupSharedRPKIRepository opens a pool with several connections. Writers
// take the database lock at BEGIN and wait for each other.
func setupSharedRPKIRepository(t *testing.T, conns int) (*RPKIRepository, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "shared.sqlite") + "?_pragma=busy_timeout(10000)&_txlock=immediate"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewRPKIRepository(db), db
}

func TestGetOrCreateVRPConcurrentTransactionsConverge(t *testing.T) {
	const workers = 8
	repo, db := setupSharedRPKIRepository(t, workers)
	unit := uow.NewUnitOfWork(db)
	ctx := context.Background()

	ids := make([]uint64, workers)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := unit.WithTx(ctx, func(txCtx context.Context) error {
				vrp, _, err := repo.GetOrCreateVRP(txCtx, "10.0.0.0/8", "AS1")
				ids[i] = vrp.ID
				return err
			})
			if err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("GetOrCreateVRP() in tx error = %v", err)
	}

	for _, id := range ids {
		if id == 0 || id != ids[0] {
			t.Fatalf("GetOrCreateVRP() ids = %v, want one id", ids)
		}
	}
	if n := countRows(t, db, &model.VRP{}); n != 1 {
		t.Fatalf("vrps = %d, want 1", n)
	}
}

func TestGetOrCreateVRPAdoptsRowInsertedAfterLookup(t *testing.T) {
	repo, db := setupRPKIRepository(t)
	unit := uow.NewUnitOfWork(db)
	ctx := context.Background()

	// Another writer lands the same VRP between the lookup and the insert.
	inserted := false
	err := db.Callback().Create().Before("gorm:create").Register("test:competing_vrp", func(tx *gorm.DB) {
		if inserted || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "vrps" {
			return
		}
		inserted = true
		if err := tx.Session(&gorm.Session{NewDB: true}).
			Exec("INSERT INTO vrps (prefix, asn) VALUES (?, ?)", "10.0.0.0/8", "AS1").Error; err != nil {
			_ = tx.AddError(err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	var id uint64
	var created bool
	err = unit.WithTx(ctx, func(txCtx context.Context) error {
		vrp, c, err := repo.GetOrCreateVRP(txCtx, "10.0.0.0/8", "AS1")
		id, created = vrp.ID, c
		return err
	})
	if err != nil {
		t.Fatalf("GetOrCreateVRP() error = %v", err)
	}
	if !inserted {
		t.Fatalf("competing insert did not run")
	}
	if created {
		t.Fatalf("GetOrCreateVRP() created = true, want the competing row")
	}

	var stored model.VRP
	if err := db.Where(map[string]any{"prefix": "10.0.0.0/8", "asn": "AS1"}).Take(&stored).Error; err != nil {
		t.Fatalf("load vrp: %v", err)
	}
	if id != stored.ID {
		t.Fatalf("GetOrCreateVRP() id = %d, want %d", id, stored.ID)
	}
	if n := countRows(t, db, &model.VRP{}); n != 1 {
		t.Fatalf("vrps = %d, want 1", n)
	}
}

func TestLockingReadSharesRowOnServerDialects(t *testing.T) {
	pg, err := gorm.Open(postgres.Open("host=localhost user=rpkimon dbname=rpkimon sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open postgres dialector: %v", err)
	}
	stmt := lockingRead(pg).Where(map[string]any{"prefix": "10.0.0.0/8"}).Take(&model.VRP{}).Statement
	if sql := stmt.SQL.String(); !strings.Contains(sql, "FOR SHARE") {
		t.Fatalf("postgres reload sql = %q, want FOR SHARE", sql)
	}

	_, db := setupRPKIRepository(t)
	stmt = lockingRead(db.Session(&gorm.Session{DryRun: true})).Where(map[string]any{"prefix": "10.0.0.0/8"}).Take(&model.VRP{}).Statement
	if sql := stmt.SQL.String(); strings.Contains(sql, "FOR") {
		t.Fatalf("sqlite reload sql = %q, want no lock clause", sql)
	}
}
