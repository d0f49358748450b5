package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/domain/rpki"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
)

// Batch names.
const (
	BatchGhostbusters = "ghostbusters"
	BatchRepositories = "repositories"
	BatchObjects      = "objects"
)

// IngestGhostbusters creates the owners named by a ghostbuster report. The
// first report that names an owner sets its email and timestamp. Contacts
// are not attached to the update.
func (s *Service) IngestGhostbusters(ctx context.Context, handle UpdateHandle, data []byte) (BatchSummary, error) {
	if err := s.check(ctx); err != nil {
		return BatchSummary{}, err
	}
	ctx = s.batchContext(ctx, handle, BatchGhostbusters)
	defer s.observe(BatchGhostbusters, time.Now())

	batch, err := rpki.DecodeBatch(data, rpki.SectionContacts)
	if err != nil {
		return BatchSummary{Batch: BatchGhostbusters, Err: err.Error()}, errs.Wrap(err, "decode ghostbusters")
	}
	summary := BatchSummary{Batch: BatchGhostbusters, Time: batch.Time}

	contacts, failures := batch.Contacts()
	section := SectionSummary{Section: rpki.SectionContacts, Total: batch.Len(rpki.SectionContacts), Failures: failures}
	if err := s.skipMalformed(ctx, rpki.KindContact, failures); err != nil {
		return withSection(summary, section), err
	}

	for _, contact := range contacts {
		err := s.withRecordTx(ctx, func(txCtx context.Context) error {
			_, created, err := s.repo.GetOrCreateOwner(txCtx, ports.Owner{
				ID:        contact.Owner,
				Email:     contact.Email,
				TimeStamp: batch.Time,
			})
			if err != nil {
				return err
			}
			s.created("owner", created)
			return nil
		})
		if err != nil {
			return withSection(summary, section), errs.Wrapf(err, "ingest contact %q", contact.Owner)
		}
		section.Ingested++
		s.record(rpki.KindContact, ports.OutcomeIngested)
	}

	summary = withSection(summary, section)
	s.logSummary(ctx, summary)
	return summary, nil
}

// IngestUnreachabilities records one Unreachability per reported publication
// point. URLs and communication types are linked only when the publication
// point is new, unless MergePublicationPointAssociations is set.
func (s *Service) IngestUnreachabilities(ctx context.Context, handle UpdateHandle, data []byte) (BatchSummary, error) {
	if err := s.check(ctx); err != nil {
		return BatchSummary{}, err
	}
	ctx = s.batchContext(ctx, handle, BatchRepositories)
	defer s.observe(BatchRepositories, time.Now())

	batch, err := rpki.DecodeBatch(data, rpki.SectionUnreachablePublicationPoints)
	if err != nil {
		return BatchSummary{Batch: BatchRepositories, Err: err.Error()}, errs.Wrap(err, "decode repositories")
	}
	summary := BatchSummary{Batch: BatchRepositories, Time: batch.Time}

	points, failures := batch.UnreachablePublicationPoints()
	section := SectionSummary{
		Section:  rpki.SectionUnreachablePublicationPoints,
		Total:    batch.Len(rpki.SectionUnreachablePublicationPoints),
		Failures: failures,
	}
	if err := s.skipMalformed(ctx, rpki.KindUnreachability, failures); err != nil {
		return withSection(summary, section), err
	}

	for _, point := range points {
		err := s.withRecordTx(ctx, func(txCtx context.Context) error {
			return s.addUnreachability(txCtx, handle, batch.Time, point)
		})
		if err != nil {
			return withSection(summary, section), errs.Wrapf(err, "ingest unreachability %q", point.Repository)
		}
		section.Ingested++
		s.record(rpki.KindUnreachability, ports.OutcomeIngested)
	}

	summary = withSection(summary, section)
	s.logSummary(ctx, summary)
	return summary, nil
}

func (s *Service) addUnreachability(ctx context.Context, handle UpdateHandle, ts time.Time, point rpki.UnreachablePublicationPoint) error {
	created, err := s.repo.GetOrCreatePublicationPoint(ctx, point.Repository)
	if err != nil {
		return err
	}
	s.created("publication_point", created)

	if created || s.options.MergePublicationPointAssociations {
		for _, url := range point.URLs {
			urlCreated, err := s.repo.GetOrCreateURL(ctx, url)
			if err != nil {
				return err
			}
			s.created("url", urlCreated)
			if err := s.repo.AddPublicationPointURL(ctx, point.Repository, url); err != nil {
				return err
			}
		}
		for _, name := range point.CommunicationTypes {
			typeCreated, err := s.repo.GetOrCreateCommunicationType(ctx, name)
			if err != nil {
				return err
			}
			s.created("communication_type", typeCreated)
			if err := s.repo.AddPublicationPointCommunicationType(ctx, point.Repository, name); err != nil {
				return err
			}
		}
	}

	unreachabilityID, err := s.repo.CreateUnreachability(ctx, ports.UnreachabilityCreate{
		UpdateID:   handle.Update.ID,
		Repository: point.Repository,
		TimeStamp:  ts,
	})
	if err != nil {
		return err
	}

	for _, text := range point.ErrorMessages {
		message, messageCreated, err := s.repo.GetOrCreateErrorMessage(ctx, text)
		if err != nil {
			return err
		}
		s.created("error_message", messageCreated)
		if err := s.repo.AddUnreachabilityErrorMessage(ctx, unreachabilityID, message.ID); err != nil {
			return err
		}
	}
	return nil
}

// IngestObjects records the Inconsistencies and Errors of an objects report.
// Owners first seen here are created without an email.
func (s *Service) IngestObjects(ctx context.Context, handle UpdateHandle, data []byte) (BatchSummary, error) {
	if err := s.check(ctx); err != nil {
		return BatchSummary{}, err
	}
	ctx = s.batchContext(ctx, handle, BatchObjects)
	defer s.observe(BatchObjects, time.Now())

	batch, err := rpki.DecodeBatch(data, rpki.SectionInconsistencies, rpki.SectionErrors)
	if err != nil {
		return BatchSummary{Batch: BatchObjects, Err: err.Error()}, errs.Wrap(err, "decode objects")
	}
	summary := BatchSummary{Batch: BatchObjects, Time: batch.Time}

	inconsistencies, failures := batch.Inconsistencies()
	inconsistencySection := SectionSummary{
		Section:  rpki.SectionInconsistencies,
		Total:    batch.Len(rpki.SectionInconsistencies),
		Failures: failures,
	}
	objectErrors, failures := batch.ObjectErrors()
	errorSection := SectionSummary{
		Section:  rpki.SectionErrors,
		Total:    batch.Len(rpki.SectionErrors),
		Failures: failures,
	}
	if err := s.skipMalformed(ctx, rpki.KindInconsistency, inconsistencySection.Failures); err != nil {
		return withSection(summary, inconsistencySection, errorSection), err
	}
	if err := s.skipMalformed(ctx, rpki.KindObjectError, errorSection.Failures); err != nil {
		return withSection(summary, inconsistencySection, errorSection), err
	}

	for _, record := range inconsistencies {
		err := s.withRecordTx(ctx, func(txCtx context.Context) error {
			return s.addInconsistency(txCtx, handle, batch.Time, record)
		})
		if err != nil {
			return withSection(summary, inconsistencySection, errorSection), errs.Wrapf(err, "ingest inconsistency %q", record.ObjectName)
		}
		inconsistencySection.Ingested++
		s.record(rpki.KindInconsistency, ports.OutcomeIngested)
	}

	for _, record := range objectErrors {
		err := s.withRecordTx(ctx, func(txCtx context.Context) error {
			return s.addObjectError(txCtx, handle, batch.Time, record)
		})
		if err != nil {
			return withSection(summary, inconsistencySection, errorSection), errs.Wrapf(err, "ingest error %q", record.ObjectName)
		}
		errorSection.Ingested++
		s.record(rpki.KindObjectError, ports.OutcomeIngested)
	}

	summary = withSection(summary, inconsistencySection, errorSection)
	s.logSummary(ctx, summary)
	return summary, nil
}

func (s *Service) addInconsistency(ctx context.Context, handle UpdateHandle, ts time.Time, record rpki.Inconsistency) error {
	if err := s.ensureOwner(ctx, record.Owner, ts); err != nil {
		return err
	}

	inconsistencyID, err := s.repo.CreateInconsistency(ctx, ports.InconsistencyCreate{
		UpdateID:       handle.Update.ID,
		OwnerID:        record.Owner,
		AffectedObject: record.ObjectName,
		ObjectType:     record.ObjectType,
		Reason:         record.Reason,
		TimeStamp:      ts,
	})
	if err != nil {
		return err
	}

	roles := []struct {
		role  ports.RelyingPartyRole
		names []string
	}{
		{ports.RoleAccepting, record.AcceptingRPs},
		{ports.RoleRejecting, record.RejectingRPs},
	}
	for _, r := range roles {
		for _, name := range r.names {
			created, err := s.repo.GetOrCreateRelyingParty(ctx, name)
			if err != nil {
				return err
			}
			s.created("relying_party", created)
			if err := s.repo.AddInconsistencyRelyingParty(ctx, inconsistencyID, name, r.role); err != nil {
				return err
			}
		}
	}

	for _, ref := range record.AffectedVRPs {
		vrp, err := s.ensureVRP(ctx, ref)
		if err != nil {
			return err
		}
		if err := s.repo.AddInconsistencyVRP(ctx, inconsistencyID, vrp.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) addObjectError(ctx context.Context, handle UpdateHandle, ts time.Time, record rpki.ObjectError) error {
	if err := s.ensureOwner(ctx, record.Owner, ts); err != nil {
		return err
	}

	objectErrorID, err := s.repo.CreateObjectError(ctx, ports.ObjectErrorCreate{
		UpdateID:   handle.Update.ID,
		OwnerID:    record.Owner,
		Name:       record.ObjectName,
		ObjectType: record.ObjectType,
		Reason:     record.Reason,
		TimeStamp:  ts,
	})
	if err != nil {
		return err
	}

	for _, ref := range record.AffectedVRPs {
		vrp, err := s.ensureVRP(ctx, ref)
		if err != nil {
			return err
		}
		if err := s.repo.AddObjectErrorVRP(ctx, objectErrorID, vrp.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureOwner(ctx context.Context, ownerID string, ts time.Time) error {
	_, created, err := s.repo.GetOrCreateOwner(ctx, ports.Owner{ID: ownerID, TimeStamp: ts})
	if err != nil {
		return err
	}
	s.created("owner", created)
	return nil
}

func (s *Service) ensureVRP(ctx context.Context, ref rpki.VRP) (ports.VRP, error) {
	vrp, created, err := s.repo.GetOrCreateVRP(ctx, ref.Prefix, ref.ASN)
	if err != nil {
		return ports.VRP{}, err
	}
	s.created("vrp", created)
	return vrp, nil
}

// skipMalformed logs and counts malformed records. In atomic mode the first
// one fails the run instead.
func (s *Service) skipMalformed(ctx context.Context, kind string, failures []rpki.RecordFailure) error {
	if len(failures) == 0 {
		return nil
	}
	if s.options.Atomic {
		f := failures[0]
		return fmt.Errorf("reject %s[%d]: %w", f.Section, f.Index, f.Err)
	}

	for _, f := range failures {
		logging.Warn(ctx, "skip malformed record",
			slog.String("section", f.Section),
			slog.Int("index", f.Index),
			slog.String("reason", f.Reason),
		)
		s.record(kind, ports.OutcomeSkipped)
	}
	return nil
}

func (s *Service) batchContext(ctx context.Context, handle UpdateHandle, batch string) context.Context {
	return logging.WithAttrs(ctx,
		slog.String("component", "usecase.ingest"),
		slog.String("run_id", handle.Update.RunID),
		slog.Uint64("update_id", handle.Update.ID),
		slog.String("batch", batch),
	)
}

func (s *Service) logSummary(ctx context.Context, summary BatchSummary) {
	attrs := []slog.Attr{slog.Time("report_time", summary.Time)}
	for _, section := range summary.Sections {
		attrs = append(attrs, slog.Group(section.Section,
			slog.Int("total", section.Total),
			slog.Int("ingested", section.Ingested),
			slog.Int("skipped", len(section.Failures)),
		))
	}
	logging.Info(ctx, "batch ingested", attrs...)
}

func withSection(summary BatchSummary, sections ...SectionSummary) BatchSummary {
	summary.Sections = append(summary.Sections, sections...)
	return summary
}
