package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	"rpkimon/internal/bootstrap/logging"
	"rpkimon/internal/errs"
	"rpkimon/internal/ports"
)

const (
	DefaultSubject = "RPKI Issue Notification"
	DefaultFrom    = "no-reply@rpkimon.local"
)

type Service struct {
	repo     ports.RPKIReadRepository
	notifier ports.Notifier
	from     string
	subject  string
}

func NewService(repo ports.RPKIReadRepository, notifier ports.Notifier, from string, subject string) *Service {
	if strings.TrimSpace(from) == "" {
		from = DefaultFrom
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	return &Service{repo: repo, notifier: notifier, from: from, subject: subject}
}

// Digest collects what one owner should hear about one update.
type Digest struct {
	Owner           ports.Owner
	Inconsistencies []ports.InconsistencyView
	Errors          []ports.ObjectErrorView
}

type DispatchResult struct {
	UpdateID uint64
	Sent     int
	Failed   int
}

// Digests groups the inconsistencies and errors of an update by owner.
// Owners without an email address are left out. Digests are ordered by
// owner id.
func (s *Service) Digests(ctx context.Context, updateID uint64) ([]Digest, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s.repo == nil {
		return nil, errors.New("rpki repository is required")
	}

	if _, err := s.repo.GetUpdate(ctx, updateID); err != nil {
		return nil, err
	}
	filter := ports.EventFilter{UpdateID: updateID}
	inconsistencies, err := s.repo.ListInconsistencies(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(err, "list inconsistencies")
	}
	objectErrors, err := s.repo.ListObjectErrors(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(err, "list errors")
	}

	byOwner := make(map[string]*Digest)
	digestFor := func(owner ports.Owner) *Digest {
		if owner.Email == nil || strings.TrimSpace(*owner.Email) == "" {
			return nil
		}
		d, ok := byOwner[owner.ID]
		if !ok {
			d = &Digest{Owner: owner}
			byOwner[owner.ID] = d
		}
		return d
	}
	for _, item := range inconsistencies {
		if d := digestFor(item.Owner); d != nil {
			d.Inconsistencies = append(d.Inconsistencies, item)
		}
	}
	for _, item := range objectErrors {
		if d := digestFor(item.Owner); d != nil {
			d.Errors = append(d.Errors, item)
		}
	}

	out := make([]Digest, 0, len(byOwner))
	for _, d := range byOwner {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner.ID < out[j].Owner.ID })
	return out, nil
}

// Dispatch sends one notification per digest. A failed send is logged and
// counted; the remaining owners are still notified.
func (s *Service) Dispatch(ctx context.Context, updateID uint64) (DispatchResult, error) {
	if s.notifier == nil {
		return DispatchResult{}, errors.New("notifier is required")
	}

	digests, err := s.Digests(ctx, updateID)
	if err != nil {
		return DispatchResult{}, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.notify"), slog.Uint64("update_id", updateID))
	result := DispatchResult{UpdateID: updateID}
	for _, digest := range digests {
		n, err := s.Render(digest)
		if err != nil {
			return result, err
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			result.Failed++
			logging.Warn(logCtx, "notify owner failed",
				slog.String("owner", digest.Owner.ID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		result.Sent++
	}

	logging.Info(logCtx, "owner notifications dispatched", slog.Int("sent", result.Sent), slog.Int("failed", result.Failed))
	return result, nil
}

var bodyTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"join": func(values []string) string { return strings.Join(values, ", ") },
}).Parse(`RPKI issues for {{.Owner.ID}}
{{range .Inconsistencies}}
Inconsistency: {{.AffectedObject}} ({{.ObjectType}})
  Reason: {{.Reason}}
{{- if .AcceptingRPs}}
  Accepted by: {{join .AcceptingRPs}}{{end}}
{{- if .RejectingRPs}}
  Rejected by: {{join .RejectingRPs}}{{end}}
{{- range .AffectedVRPs}}
  VRP: {{.Prefix}} {{.ASN}}{{end}}
{{end}}
{{- range .Errors}}
Error: {{.Name}} ({{.ObjectType}})
  Reason: {{.Reason}}
{{- range .AffectedVRPs}}
  VRP: {{.Prefix}} {{.ASN}}{{end}}
{{end}}`))

// Render builds the notification for digest.
func (s *Service) Render(digest Digest) (ports.Notification, error) {
	if digest.Owner.Email == nil {
		return ports.Notification{}, fmt.Errorf("owner %q has no email", digest.Owner.ID)
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, digest); err != nil {
		return ports.Notification{}, errs.Wrap(err, "render digest")
	}
	return ports.Notification{
		To:      *digest.Owner.Email,
		From:    s.from,
		Subject: s.subject,
		Body:    body.String(),
	}, nil
}
