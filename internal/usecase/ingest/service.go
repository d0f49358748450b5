package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rpkimon/internal/domain/rpki"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
)

const lastRunCacheKey = "ingest:last_run"

var errRepositoryRequired = errors.New("rpki repository is required")

// Options switch between the ingestion policies.
type Options struct {
	// Atomic runs a whole ingestion in one transaction. Any malformed record
	// or batch then rolls back the run instead of being skipped.
	Atomic bool
	// MergePublicationPointAssociations links reported URLs and
	// communication types to publication points that already exist. When
	// false they are linked only when the point is created.
	MergePublicationPointAssociations bool
}

type Service struct {
	repo    ports.RPKIRepository
	uow     ports.UnitOfWork
	cache   ports.Cache
	metrics ports.IngestMetrics
	options Options
	now     func() time.Time
	newID   func() string
}

// NewService wires ingestion with its store. uow, cache and metrics are
// optional.
func NewService(repo ports.RPKIRepository, uow ports.UnitOfWork, cache ports.Cache, metrics ports.IngestMetrics, options Options) *Service {
	return &Service{
		repo:    repo,
		uow:     uow,
		cache:   cache,
		metrics: metrics,
		options: options,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// UpdateHandle identifies the Update every event of one run is attached to.
type UpdateHandle struct {
	Update ports.Update
}

type SectionSummary struct {
	Section  string
	Total    int
	Ingested int
	Failures []rpki.RecordFailure
}

// BatchSummary reports one report document. Err is set when the document
// itself was rejected; its records were then not looked at.
type BatchSummary struct {
	Batch    string
	Time     time.Time
	Sections []SectionSummary
	Err      string
}

// Failures returns the skipped records of every section.
func (b BatchSummary) Failures() []rpki.RecordFailure {
	var out []rpki.RecordFailure
	for _, section := range b.Sections {
		out = append(out, section.Failures...)
	}
	return out
}

func (b BatchSummary) Ingested() int {
	n := 0
	for _, section := range b.Sections {
		n += section.Ingested
	}
	return n
}

// BeginUpdate allocates the Update row for one ingestion run.
func (s *Service) BeginUpdate(ctx context.Context) (UpdateHandle, error) {
	if err := s.check(ctx); err != nil {
		return UpdateHandle{}, err
	}

	update, err := s.repo.CreateUpdate(ctx, ports.Update{
		RunID:     s.newID(),
		TimeStamp: s.now().UTC(),
	})
	if err != nil {
		return UpdateHandle{}, errs.Wrap(err, "create update")
	}
	if s.metrics != nil {
		s.metrics.IncrementUpdatesCreated()
	}
	return UpdateHandle{Update: update}, nil
}

func (s *Service) check(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errRepositoryRequired
	}
	return nil
}

// withRecordTx commits one record with the rows it creates. Inside an
// atomic run it nests into the run transaction.
func (s *Service) withRecordTx(ctx context.Context, fn func(context.Context) error) error {
	if s.uow == nil {
		return fn(ctx)
	}
	return s.uow.WithTx(ctx, fn)
}

func (s *Service) created(entity string, created bool) {
	if s.metrics != nil {
		s.metrics.IncrementCreated(entity, created)
	}
}

func (s *Service) record(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementRecord(kind, outcome)
	}
}

func (s *Service) observe(kind string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveBatch(kind, start)
	}
}
