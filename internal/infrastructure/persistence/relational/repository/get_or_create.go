package repository

import (
	"errors"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rpkimon/internal/errs"
)

// getOrCreate loads the row matching key into row, or inserts row when no
// such row exists. It reports whether this call inserted the row.
//
// The insert is ON CONFLICT DO NOTHING against the unique constraint on key,
// so a writer that loses a race re-reads the winner's row instead of failing.
// The re-read locks the row so it sees rows committed after the snapshot of a
// REPEATABLE READ transaction.
// Fields of row beyond key are defaults: they only reach the store on insert.
func getOrCreate[T any](db *gorm.DB, row *T, key map[string]any) (bool, error) {
	found, err := takeByKey(db, row, key)
	if err != nil {
		return false, errs.Wrap(err, "lookup by natural key")
	}
	if found {
		return false, nil
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   keyColumns(key),
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "insert by natural key")
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	found, err = takeByKey(lockingRead(db), row, key)
	if err != nil {
		return false, errs.Wrap(err, "reload after conflict")
	}
	if !found {
		return false, errors.New("row vanished after insert conflict")
	}
	return false, nil
}

func takeByKey[T any](db *gorm.DB, row *T, key map[string]any) (bool, error) {
	var existing T
	if err := db.Where(key).Take(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	*row = existing
	return true, nil
}

// lockingRead turns the next query into SELECT ... FOR SHARE. SQLite has no
// row locks and no snapshot to escape, so it is left alone there.
func lockingRead(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthShare})
}

func keyColumns(key map[string]any) []clause.Column {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]clause.Column, 0, len(names))
	for _, name := range names {
		cols = append(cols, clause.Column{Name: name})
	}
	return cols
}

// link inserts an association row, ignoring an existing identical link.
func link[T any](db *gorm.DB, row *T) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}
