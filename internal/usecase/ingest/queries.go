package ingest

import (
	"context"
	"log/slog"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
)

// UpdateEvents is everything one Update recorded.
type UpdateEvents struct {
	Update           ports.UpdateSummary
	Unreachabilities []ports.UnreachabilityView
	Inconsistencies  []ports.InconsistencyView
	Errors           []ports.ObjectErrorView
}

func (s *Service) ListUpdates(ctx context.Context, limit int) ([]ports.UpdateSummary, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUpdates(ctx, limit)
}

func (s *Service) GetUpdate(ctx context.Context, updateID uint64) (ports.UpdateSummary, error) {
	if err := s.check(ctx); err != nil {
		return ports.UpdateSummary{}, err
	}
	return s.repo.GetUpdate(ctx, updateID)
}

// ListUpdateEvents returns the events created by one Update with their
// owners, publication points, relying parties and VRPs resolved.
func (s *Service) ListUpdateEvents(ctx context.Context, updateID uint64) (UpdateEvents, error) {
	if err := s.check(ctx); err != nil {
		return UpdateEvents{}, err
	}

	update, err := s.repo.GetUpdate(ctx, updateID)
	if err != nil {
		return UpdateEvents{}, err
	}
	filter := ports.EventFilter{UpdateID: updateID}

	out := UpdateEvents{Update: update}
	if out.Unreachabilities, err = s.repo.ListUnreachabilities(ctx, filter); err != nil {
		return UpdateEvents{}, errs.Wrap(err, "list unreachabilities")
	}
	if out.Inconsistencies, err = s.repo.ListInconsistencies(ctx, filter); err != nil {
		return UpdateEvents{}, errs.Wrap(err, "list inconsistencies")
	}
	if out.Errors, err = s.repo.ListObjectErrors(ctx, filter); err != nil {
		return UpdateEvents{}, errs.Wrap(err, "list errors")
	}
	return out, nil
}

func (s *Service) ListUnreachabilities(ctx context.Context, filter ports.EventFilter) ([]ports.UnreachabilityView, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUnreachabilities(ctx, filter)
}

func (s *Service) ListInconsistencies(ctx context.Context, filter ports.EventFilter) ([]ports.InconsistencyView, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListInconsistencies(ctx, filter)
}

func (s *Service) ListObjectErrors(ctx context.Context, filter ports.EventFilter) ([]ports.ObjectErrorView, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListObjectErrors(ctx, filter)
}

// DeleteUpdate removes an Update and its events. Owners, publication points
// and the other shared rows stay.
func (s *Service) DeleteUpdate(ctx context.Context, updateID uint64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteUpdate(ctx, updateID); err != nil {
		return err
	}
	logging.Info(logging.WithAttrs(ctx, slog.String("component", "usecase.ingest")), "update deleted", slog.Uint64("update_id", updateID))
	return nil
}
