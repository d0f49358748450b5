package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/domain/rpki"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
)

// RunInput holds the three report documents of one run. A nil document is
// not ingested.
type RunInput struct {
	Ghostbusters []byte
	Repositories []byte
	Objects      []byte
}

type RunResult struct {
	Update  ports.Update
	Batches []BatchSummary
}

// Failures counts records skipped as malformed across all batches.
func (r RunResult) Failures() int {
	n := 0
	for _, batch := range r.Batches {
		n += len(batch.Failures())
	}
	return n
}

// LastRun is what the cache remembers about the latest completed run.
type LastRun struct {
	UpdateID   uint64    `json:"update_id"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Ingested   int       `json:"ingested"`
	Skipped    int       `json:"skipped"`
	Rejected   []string  `json:"rejected_batches,omitempty"`
}

// Run opens one Update and feeds it the ghostbusters, repositories and
// objects documents in that order.
//
// A document that cannot be decoded as a report is recorded in its
// BatchSummary and the run continues with the next one. Store errors stop
// the run. With Options.Atomic the whole run is one transaction and any
// rejected document or record rolls it back, and its counters are only
// published once the transaction commits.
func (s *Service) Run(ctx context.Context, input RunInput) (RunResult, error) {
	if err := s.check(ctx); err != nil {
		return RunResult{}, err
	}

	var result RunResult
	var err error
	if s.options.Atomic && s.uow != nil {
		runSvc := *s
		var deferred *deferredMetrics
		if s.metrics != nil {
			deferred = newDeferredMetrics(s.metrics)
			runSvc.metrics = deferred
		}
		err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
			var runErr error
			result, runErr = runSvc.run(txCtx, input)
			return runErr
		})
		if err == nil && deferred != nil {
			deferred.flush()
		}
	} else {
		result, err = s.run(ctx, input)
	}
	if err != nil {
		logging.Error(logging.WithAttrs(ctx, slog.String("component", "usecase.ingest")), "ingest run failed",
			slog.Any("err", errs.Loggable(err)),
			slog.String("run_id", result.Update.RunID),
		)
		return result, err
	}

	s.rememberRun(ctx, result)
	return result, nil
}

func (s *Service) run(ctx context.Context, input RunInput) (RunResult, error) {
	handle, err := s.BeginUpdate(ctx)
	if err != nil {
		return RunResult{}, err
	}
	result := RunResult{Update: handle.Update}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.ingest"),
		slog.String("run_id", handle.Update.RunID),
		slog.Uint64("update_id", handle.Update.ID),
	)
	logging.Info(logCtx, "ingest run started")

	steps := []struct {
		name   string
		data   []byte
		ingest func(context.Context, UpdateHandle, []byte) (BatchSummary, error)
	}{
		{BatchGhostbusters, input.Ghostbusters, s.IngestGhostbusters},
		{BatchRepositories, input.Repositories, s.IngestUnreachabilities},
		{BatchObjects, input.Objects, s.IngestObjects},
	}
	for _, step := range steps {
		if step.data == nil {
			logging.Debug(logCtx, "batch not provided", slog.String("batch", step.name))
			continue
		}

		summary, err := step.ingest(ctx, handle, step.data)
		result.Batches = append(result.Batches, summary)
		if err == nil {
			continue
		}
		if isBatchRejection(err) && !s.options.Atomic {
			logging.Error(logCtx, "batch rejected",
				slog.String("batch", step.name),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		return result, err
	}

	logging.Info(logCtx, "ingest run finished", slog.Int("skipped", result.Failures()))
	return result, nil
}

func isBatchRejection(err error) bool {
	return errors.Is(err, rpki.ErrMalformedBatch) ||
		errors.Is(err, rpki.ErrTimeRequired) ||
		errors.Is(err, rpki.ErrInvalidTime)
}

func (s *Service) rememberRun(ctx context.Context, result RunResult) {
	if s.cache == nil {
		return
	}

	last := LastRun{
		UpdateID:   result.Update.ID,
		RunID:      result.Update.RunID,
		StartedAt:  result.Update.TimeStamp,
		FinishedAt: s.now().UTC(),
		Skipped:    result.Failures(),
	}
	for _, batch := range result.Batches {
		last.Ingested += batch.Ingested()
		if batch.Err != "" {
			last.Rejected = append(last.Rejected, batch.Batch)
		}
	}

	payload, err := json.Marshal(last)
	if err == nil {
		err = s.cache.Set(ctx, lastRunCacheKey, string(payload), 0)
	}
	if err != nil {
		logging.Warn(logging.WithAttrs(ctx, slog.String("component", "usecase.ingest")), "remember last run failed",
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

// LastRun returns the latest completed run recorded in the cache.
func (s *Service) LastRun(ctx context.Context) (LastRun, bool, error) {
	if ctx == nil {
		return LastRun{}, false, errors.New("context is required")
	}
	if s.cache == nil {
		return LastRun{}, false, nil
	}

	raw, found, err := s.cache.Get(ctx, lastRunCacheKey)
	if err != nil || !found {
		return LastRun{}, false, err
	}
	var last LastRun
	if err := json.Unmarshal([]byte(raw), &last); err != nil {
		return LastRun{}, false, errs.Wrap(err, "decode last run")
	}
	return last, true, nil
}
