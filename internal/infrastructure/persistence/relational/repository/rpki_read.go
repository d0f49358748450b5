package repository

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	"rpkimon/internal/errs"
	"rpkimon/internal/infrastructure/persistence/relational/model"
	"rpkimon/internal/ports"
)

func (r *RPKIRepository) ListUpdates(ctx context.Context, limit int) ([]ports.UpdateSummary, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Update{}).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []model.Update
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "list updates")
	}
	if len(rows) == 0 {
		return []ports.UpdateSummary{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := countEventsByUpdate(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ports.UpdateSummary, 0, len(rows))
	for _, row := range rows {
		summary := counts[row.ID]
		summary.Update = mapUpdate(row)
		out = append(out, summary)
	}
	return out, nil
}

func (r *RPKIRepository) GetUpdate(ctx context.Context, updateID uint64) (ports.UpdateSummary, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.UpdateSummary{}, err
	}

	var row model.Update
	if err := db.Where("id = ?", updateID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.UpdateSummary{}, ports.ErrUpdateNotFound
		}
		return ports.UpdateSummary{}, errs.Wrapf(err, "get update %d", updateID)
	}

	counts, err := countEventsByUpdate(db, []uint64{row.ID})
	if err != nil {
		return ports.UpdateSummary{}, err
	}
	summary := counts[row.ID]
	summary.Update = mapUpdate(row)
	return summary, nil
}

func (r *RPKIRepository) GetOwner(ctx context.Context, ownerID string) (ports.Owner, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Owner{}, err
	}

	var row model.Owner
	if err := db.Where("id = ?", ownerID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Owner{}, ports.ErrOwnerNotFound
		}
		return ports.Owner{}, errs.Wrapf(err, "get owner %q", ownerID)
	}
	return mapOwner(row), nil
}

func (r *RPKIRepository) GetPublicationPoint(ctx context.Context, repository string) (ports.PublicationPoint, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.PublicationPoint{}, err
	}

	var row model.PublicationPoint
	if err := db.Where("repository = ?", repository).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.PublicationPoint{}, ports.ErrPublicationPointNotFound
		}
		return ports.PublicationPoint{}, errs.Wrapf(err, "get publication point %q", repository)
	}

	points, err := loadPublicationPoints(db, []string{row.Repository})
	if err != nil {
		return ports.PublicationPoint{}, err
	}
	return points[row.Repository], nil
}

func (r *RPKIRepository) ListUnreachabilities(ctx context.Context, filter ports.EventFilter) ([]ports.UnreachabilityView, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Unreachability{}).Order("id ASC")
	if filter.UpdateID > 0 {
		query = query.Where("update_id = ?", filter.UpdateID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []model.Unreachability
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "list unreachabilities")
	}
	if len(rows) == 0 {
		return []ports.UnreachabilityView{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	repositories := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		repositories = append(repositories, row.PublicationPoint)
	}
	points, err := loadPublicationPoints(db, repositories)
	if err != nil {
		return nil, err
	}

	var links []model.UnreachabilityErrorMessage
	if err := db.Where("unreachability_id IN ?", ids).Find(&links).Error; err != nil {
		return nil, errs.Wrap(err, "load unreachability error messages")
	}
	messageIDs := make([]uint64, 0, len(links))
	for _, l := range links {
		messageIDs = append(messageIDs, l.ErrorMessageID)
	}
	messages := make(map[uint64]ports.ErrorMessage, len(messageIDs))
	if len(messageIDs) > 0 {
		var messageRows []model.ErrorMessage
		if err := db.Where("id IN ?", messageIDs).Find(&messageRows).Error; err != nil {
			return nil, errs.Wrap(err, "load error messages")
		}
		for _, m := range messageRows {
			messages[m.ID] = ports.ErrorMessage{ID: m.ID, Text: m.Text}
		}
	}
	messagesByEvent := make(map[uint64][]ports.ErrorMessage, len(rows))
	for _, l := range links {
		if m, ok := messages[l.ErrorMessageID]; ok {
			messagesByEvent[l.UnreachabilityID] = append(messagesByEvent[l.UnreachabilityID], m)
		}
	}

	out := make([]ports.UnreachabilityView, 0, len(rows))
	for _, row := range rows {
		msgs := messagesByEvent[row.ID]
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		out = append(out, ports.UnreachabilityView{
			ID:               row.ID,
			UpdateID:         row.UpdateID,
			TimeStamp:        row.TimeStamp,
			PublicationPoint: points[row.PublicationPoint],
			ErrorMessages:    msgs,
		})
	}
	return out, nil
}

func (r *RPKIRepository) ListInconsistencies(ctx context.Context, filter ports.EventFilter) ([]ports.InconsistencyView, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Inconsistency{}).Order("id ASC")
	if filter.UpdateID > 0 {
		query = query.Where("update_id = ?", filter.UpdateID)
	}
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []model.Inconsistency
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "list inconsistencies")
	}
	if len(rows) == 0 {
		return []ports.InconsistencyView{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	ownerIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		ownerIDs = append(ownerIDs, row.OwnerID)
	}
	owners, err := loadOwners(db, ownerIDs)
	if err != nil {
		return nil, err
	}

	var rpLinks []model.InconsistencyRelyingParty
	if err := db.Where("inconsistency_id IN ?", ids).
		Order("relying_party ASC").
		Find(&rpLinks).Error; err != nil {
		return nil, errs.Wrap(err, "load inconsistency relying parties")
	}
	accepting := make(map[uint64][]string, len(rows))
	rejecting := make(map[uint64][]string, len(rows))
	for _, l := range rpLinks {
		switch ports.RelyingPartyRole(l.Role) {
		case ports.RoleAccepting:
			accepting[l.InconsistencyID] = append(accepting[l.InconsistencyID], l.RelyingParty)
		case ports.RoleRejecting:
			rejecting[l.InconsistencyID] = append(rejecting[l.InconsistencyID], l.RelyingParty)
		}
	}

	var vrpLinks []model.InconsistencyVRP
	if err := db.Where("inconsistency_id IN ?", ids).Find(&vrpLinks).Error; err != nil {
		return nil, errs.Wrap(err, "load inconsistency vrps")
	}
	pairs := make([][2]uint64, 0, len(vrpLinks))
	for _, l := range vrpLinks {
		pairs = append(pairs, [2]uint64{l.InconsistencyID, l.VRPID})
	}
	vrps, err := groupVRPs(db, pairs)
	if err != nil {
		return nil, err
	}

	out := make([]ports.InconsistencyView, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.InconsistencyView{
			ID:             row.ID,
			UpdateID:       row.UpdateID,
			AffectedObject: row.AffectedObject,
			ObjectType:     row.ObjectType,
			Reason:         row.Reason,
			TimeStamp:      row.TimeStamp,
			Owner:          ownerOrStub(owners, row.OwnerID),
			AcceptingRPs:   accepting[row.ID],
			RejectingRPs:   rejecting[row.ID],
			AffectedVRPs:   vrps[row.ID],
		})
	}
	return out, nil
}

func (r *RPKIRepository) ListObjectErrors(ctx context.Context, filter ports.EventFilter) ([]ports.ObjectErrorView, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ObjectError{}).Order("id ASC")
	if filter.UpdateID > 0 {
		query = query.Where("update_id = ?", filter.UpdateID)
	}
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []model.ObjectError
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "list object errors")
	}
	if len(rows) == 0 {
		return []ports.ObjectErrorView{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	ownerIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		ownerIDs = append(ownerIDs, row.OwnerID)
	}
	owners, err := loadOwners(db, ownerIDs)
	if err != nil {
		return nil, err
	}

	var vrpLinks []model.ObjectErrorVRP
	if err := db.Where("object_error_id IN ?", ids).Find(&vrpLinks).Error; err != nil {
		return nil, errs.Wrap(err, "load object error vrps")
	}
	pairs := make([][2]uint64, 0, len(vrpLinks))
	for _, l := range vrpLinks {
		pairs = append(pairs, [2]uint64{l.ObjectErrorID, l.VRPID})
	}
	vrps, err := groupVRPs(db, pairs)
	if err != nil {
		return nil, err
	}

	out := make([]ports.ObjectErrorView, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.ObjectErrorView{
			ID:           row.ID,
			UpdateID:     row.UpdateID,
			Name:         row.Name,
			ObjectType:   row.ObjectType,
			Reason:       row.Reason,
			TimeStamp:    row.TimeStamp,
			Owner:        ownerOrStub(owners, row.OwnerID),
			AffectedVRPs: vrps[row.ID],
		})
	}
	return out, nil
}

type updateCount struct {
	UpdateID uint64 `gorm:"column:update_id"`
	Total    int64  `gorm:"column:total"`
}

func countEventsByUpdate(db *gorm.DB, ids []uint64) (map[uint64]ports.UpdateSummary, error) {
	out := make(map[uint64]ports.UpdateSummary, len(ids))
	tables := []struct {
		model any
		set   func(*ports.UpdateSummary, int64)
	}{
		{&model.Unreachability{}, func(s *ports.UpdateSummary, n int64) { s.Unreachabilities = n }},
		{&model.Inconsistency{}, func(s *ports.UpdateSummary, n int64) { s.Inconsistencies = n }},
		{&model.ObjectError{}, func(s *ports.UpdateSummary, n int64) { s.Errors = n }},
	}
	for _, table := range tables {
		var counts []updateCount
		if err := db.Model(table.model).
			Select("update_id, COUNT(*) AS total").
			Where("update_id IN ?", ids).
			Group("update_id").
			Scan(&counts).Error; err != nil {
			return nil, errs.Wrapf(err, "count %T per update", table.model)
		}
		for _, c := range counts {
			summary := out[c.UpdateID]
			table.set(&summary, c.Total)
			out[c.UpdateID] = summary
		}
	}
	return out, nil
}

func loadPublicationPoints(db *gorm.DB, repositories []string) (map[string]ports.PublicationPoint, error) {
	repositories = uniqueStrings(repositories)
	out := make(map[string]ports.PublicationPoint, len(repositories))
	for _, repository := range repositories {
		out[repository] = ports.PublicationPoint{Repository: repository}
	}
	if len(repositories) == 0 {
		return out, nil
	}

	var urls []model.PublicationPointURL
	if err := db.Where("repository IN ?", repositories).
		Order("url ASC").
		Find(&urls).Error; err != nil {
		return nil, errs.Wrap(err, "load publication point urls")
	}
	for _, u := range urls {
		point := out[u.Repository]
		point.URLs = append(point.URLs, u.URL)
		out[u.Repository] = point
	}

	var types []model.PublicationPointCommunicationType
	if err := db.Where("repository IN ?", repositories).
		Order("name ASC").
		Find(&types).Error; err != nil {
		return nil, errs.Wrap(err, "load publication point communication types")
	}
	for _, t := range types {
		point := out[t.Repository]
		point.CommunicationTypes = append(point.CommunicationTypes, t.Name)
		out[t.Repository] = point
	}
	return out, nil
}

func loadOwners(db *gorm.DB, ids []string) (map[string]ports.Owner, error) {
	ids = uniqueStrings(ids)
	out := make(map[string]ports.Owner, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []model.Owner
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "load owners")
	}
	for _, row := range rows {
		out[row.ID] = mapOwner(row)
	}
	return out, nil
}

// groupVRPs resolves (eventID, vrpID) pairs into VRPs grouped by event.
func groupVRPs(db *gorm.DB, pairs [][2]uint64) (map[uint64][]ports.VRP, error) {
	out := make(map[uint64][]ports.VRP)
	if len(pairs) == 0 {
		return out, nil
	}

	vrpIDs := make([]uint64, 0, len(pairs))
	for _, p := range pairs {
		vrpIDs = append(vrpIDs, p[1])
	}
	var rows []model.VRP
	if err := db.Where("id IN ?", vrpIDs).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "load vrps")
	}
	byID := make(map[uint64]ports.VRP, len(rows))
	for _, row := range rows {
		byID[row.ID] = mapVRP(row)
	}

	for _, p := range pairs {
		if v, ok := byID[p[1]]; ok {
			out[p[0]] = append(out[p[0]], v)
		}
	}
	for id := range out {
		vrps := out[id]
		sort.Slice(vrps, func(i, j int) bool { return vrps[i].ID < vrps[j].ID })
	}
	return out, nil
}

func ownerOrStub(owners map[string]ports.Owner, id string) ports.Owner {
	if owner, ok := owners[id]; ok {
		return owner
	}
	return ports.Owner{ID: id}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func mapUpdate(row model.Update) ports.Update {
	return ports.Update{
		ID:        row.ID,
		RunID:     row.RunID,
		TimeStamp: row.TimeStamp,
	}
}

func mapOwner(row model.Owner) ports.Owner {
	return ports.Owner{
		ID:        row.ID,
		Email:     row.Email,
		TimeStamp: row.TimeStamp,
	}
}

func mapVRP(row model.VRP) ports.VRP {
	return ports.VRP{
		ID:     row.ID,
		Prefix: row.Prefix,
		ASN:    row.ASN,
	}
}
