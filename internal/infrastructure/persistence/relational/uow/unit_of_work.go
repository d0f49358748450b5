package uow

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"rpkimon/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	base := u.db
	if existing := ports.TxFromContext(ctx); existing != nil {
		gormTx, ok := existing.(*gorm.DB)
		if !ok || gormTx == nil {
			return fmt.Errorf("invalid tx in context: %T", existing)
		}
		// gorm turns a Transaction on an open tx into a savepoint.
		base = gormTx
	}

	return base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}
