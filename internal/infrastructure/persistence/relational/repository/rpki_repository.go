package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rpkimon/internal/errs"
	"rpkimon/internal/infrastructure/persistence/relational/model"
	"rpkimon/internal/ports"
)

type RPKIRepository struct {
	db *gorm.DB
}

var _ ports.RPKIRepository = (*RPKIRepository)(nil)

func NewRPKIRepository(db *gorm.DB) *RPKIRepository {
	return &RPKIRepository{db: db}
}

func (r *RPKIRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *RPKIRepository) CreateUpdate(ctx context.Context, update ports.Update) (ports.Update, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Update{}, err
	}

	row := model.Update{
		RunID:     update.RunID,
		TimeStamp: update.TimeStamp,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Update{}, errs.Wrap(err, "insert update")
	}
	return mapUpdate(row), nil
}

// DeleteUpdate removes an update with its events and their association rows.
// Dimension rows (owners, publication points, ...) are kept.
func (r *RPKIRepository) DeleteUpdate(ctx context.Context, updateID uint64) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return err
		}

		result := db.Where("id = ?", updateID).Delete(&model.Update{})
		if result.Error != nil {
			return errs.Wrap(result.Error, "delete update")
		}
		if result.RowsAffected == 0 {
			return ports.ErrUpdateNotFound
		}

		unreachabilities := db.Model(&model.Unreachability{}).Select("id").Where("update_id = ?", updateID)
		if err := db.Where("unreachability_id IN (?)", unreachabilities).Delete(&model.UnreachabilityErrorMessage{}).Error; err != nil {
			return errs.Wrap(err, "delete unreachability error messages")
		}
		inconsistencies := db.Model(&model.Inconsistency{}).Select("id").Where("update_id = ?", updateID)
		if err := db.Where("inconsistency_id IN (?)", inconsistencies).Delete(&model.InconsistencyRelyingParty{}).Error; err != nil {
			return errs.Wrap(err, "delete inconsistency relying parties")
		}
		if err := db.Where("inconsistency_id IN (?)", inconsistencies).Delete(&model.InconsistencyVRP{}).Error; err != nil {
			return errs.Wrap(err, "delete inconsistency vrps")
		}
		objectErrors := db.Model(&model.ObjectError{}).Select("id").Where("update_id = ?", updateID)
		if err := db.Where("object_error_id IN (?)", objectErrors).Delete(&model.ObjectErrorVRP{}).Error; err != nil {
			return errs.Wrap(err, "delete object error vrps")
		}

		for _, event := range []any{&model.Unreachability{}, &model.Inconsistency{}, &model.ObjectError{}} {
			if err := db.Where("update_id = ?", updateID).Delete(event).Error; err != nil {
				return errs.Wrapf(err, "delete %T rows", event)
			}
		}
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.DeleteUpdate(ports.WithTxContext(ctx, tx), updateID)
	})
}

func (r *RPKIRepository) GetOrCreateOwner(ctx context.Context, owner ports.Owner) (ports.Owner, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Owner{}, false, err
	}

	row := model.Owner{
		ID:        owner.ID,
		Email:     owner.Email,
		TimeStamp: owner.TimeStamp,
	}
	created, err := getOrCreate(db, &row, map[string]any{"id": owner.ID})
	if err != nil {
		return ports.Owner{}, false, errs.Wrapf(err, "get or create owner %q", owner.ID)
	}
	return mapOwner(row), created, nil
}

func (r *RPKIRepository) GetOrCreateURL(ctx context.Context, url string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := model.URL{URL: url}
	created, err := getOrCreate(db, &row, map[string]any{"url": url})
	if err != nil {
		return false, errs.Wrapf(err, "get or create url %q", url)
	}
	return created, nil
}

func (r *RPKIRepository) GetOrCreateCommunicationType(ctx context.Context, name string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := model.CommunicationType{Name: name}
	created, err := getOrCreate(db, &row, map[string]any{"name": name})
	if err != nil {
		return false, errs.Wrapf(err, "get or create communication type %q", name)
	}
	return created, nil
}

func (r *RPKIRepository) GetOrCreatePublicationPoint(ctx context.Context, repository string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := model.PublicationPoint{Repository: repository}
	created, err := getOrCreate(db, &row, map[string]any{"repository": repository})
	if err != nil {
		return false, errs.Wrapf(err, "get or create publication point %q", repository)
	}
	return created, nil
}

func (r *RPKIRepository) GetOrCreateErrorMessage(ctx context.Context, text string) (ports.ErrorMessage, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ErrorMessage{}, false, err
	}

	digest := errorMessageDigest(text)
	row := model.ErrorMessage{Digest: digest, Text: text}
	created, err := getOrCreate(db, &row, map[string]any{"digest": digest})
	if err != nil {
		return ports.ErrorMessage{}, false, errs.Wrap(err, "get or create error message")
	}
	return ports.ErrorMessage{ID: row.ID, Text: row.Text}, created, nil
}

func (r *RPKIRepository) GetOrCreateRelyingParty(ctx context.Context, name string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	row := model.RelyingParty{Name: name}
	created, err := getOrCreate(db, &row, map[string]any{"name": name})
	if err != nil {
		return false, errs.Wrapf(err, "get or create relying party %q", name)
	}
	return created, nil
}

func (r *RPKIRepository) GetOrCreateVRP(ctx context.Context, prefix string, asn string) (ports.VRP, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.VRP{}, false, err
	}

	row := model.VRP{Prefix: prefix, ASN: asn}
	created, err := getOrCreate(db, &row, map[string]any{"prefix": prefix, "asn": asn})
	if err != nil {
		return ports.VRP{}, false, errs.Wrapf(err, "get or create vrp %s %s", prefix, asn)
	}
	return mapVRP(row), created, nil
}

func (r *RPKIRepository) AddPublicationPointURL(ctx context.Context, repository string, url string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := link(db, &model.PublicationPointURL{Repository: repository, URL: url}); err != nil {
		return errs.Wrap(err, "insert publication point url")
	}
	return nil
}

func (r *RPKIRepository) AddPublicationPointCommunicationType(ctx context.Context, repository string, name string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := link(db, &model.PublicationPointCommunicationType{Repository: repository, Name: name}); err != nil {
		return errs.Wrap(err, "insert publication point communication type")
	}
	return nil
}

func (r *RPKIRepository) CreateUnreachability(ctx context.Context, input ports.UnreachabilityCreate) (uint64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	row := model.Unreachability{
		UpdateID:         input.UpdateID,
		PublicationPoint: input.Repository,
		TimeStamp:        input.TimeStamp,
	}
	if err := db.Create(&row).Error; err != nil {
		return 0, errs.Wrap(err, "insert unreachability")
	}
	return row.ID, nil
}

func (r *RPKIRepository) AddUnreachabilityErrorMessage(ctx context.Context, unreachabilityID uint64, errorMessageID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := link(db, &model.UnreachabilityErrorMessage{
		UnreachabilityID: unreachabilityID,
		ErrorMessageID:   errorMessageID,
	}); err != nil {
		return errs.Wrap(err, "insert unreachability error message")
	}
	return nil
}

func (r *RPKIRepository) CreateInconsistency(ctx context.Context, input ports.InconsistencyCreate) (uint64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	row := model.Inconsistency{
		UpdateID:       input.UpdateID,
		OwnerID:        input.OwnerID,
		AffectedObject: input.AffectedObject,
		ObjectType:     input.ObjectType,
		Reason:         input.Reason,
		TimeStamp:      input.TimeStamp,
	}
	if err := db.Create(&row).Error; err != nil {
		return 0, errs.Wrap(err, "insert inconsistency")
	}
	return row.ID, nil
}

func (r *RPKIRepository) AddInconsistencyRelyingParty(ctx context.Context, inconsistencyID uint64, name string, role ports.RelyingPartyRole) error {
	if role != ports.RoleAccepting && role != ports.RoleRejecting {
		return fmt.Errorf("unsupported relying party role %q", role)
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := link(db, &model.InconsistencyRelyingParty{
		InconsistencyID: inconsistencyID,
		RelyingParty:    name,
		Role:            string(role),
	}); err != nil {
		return errs.Wrap(err, "insert inconsistency relying party")
	}
	return nil
}

func (r *RPKIRepository) AddInconsistencyVRP(ctx context.Context, inconsistencyID uint64, vrpID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := link(db, &model.InconsistencyVRP{InconsistencyID: inconsistencyID, VRPID: vrpID}); err != nil {
		return errs.Wrap(err, "insert inconsistency vrp")
	}
	return nil
}

func (r *RPKIRepository) CreateObjectError(ctx context.Context, input ports.ObjectErrorCreate) (uint64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	row := model.ObjectError{
		UpdateID:   input.UpdateID,
		OwnerID:    input.OwnerID,
		Name:       input.Name,
		ObjectType: input.ObjectType,
		Reason:     input.Reason,
		TimeStamp:  input.TimeStamp,
	}
	if err := db.Create(&row).Error; err != nil {
		return 0, errs.Wrap(err, "insert object error")
	}
	return row.ID, nil
}

func (r *RPKIRepository) AddObjectErrorVRP(ctx context.Context, objectErrorID uint64, vrpID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := link(db, &model.ObjectErrorVRP{ObjectErrorID: objectErrorID, VRPID: vrpID}); err != nil {
		return errs.Wrap(err, "insert object error vrp")
	}
	return nil
}

func errorMessageDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
