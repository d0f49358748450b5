package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rpkimon/internal/ports"
)

type stubReadRepo struct {
	ports.RPKIReadRepository
	inconsistencies []ports.InconsistencyView
	objectErrors    []ports.ObjectErrorView
	missing         bool
}

func (r stubReadRepo) GetUpdate(_ context.Context, id uint64) (ports.UpdateSummary, error) {
	if r.missing {
		return ports.UpdateSummary{}, ports.ErrUpdateNotFound
	}
	return ports.UpdateSummary{Update: ports.Update{ID: id}}, nil
}

func (r stubReadRepo) ListInconsistencies(context.Context, ports.EventFilter) ([]ports.InconsistencyView, error) {
	return r.inconsistencies, nil
}

func (r stubReadRepo) ListObjectErrors(context.Context, ports.EventFilter) ([]ports.ObjectErrorView, error) {
	return r.objectErrors, nil
}

type recordingNotifier struct {
	sent   []ports.Notification
	failTo string
}

func (n *recordingNotifier) Notify(_ context.Context, msg ports.Notification) error {
	if msg.To == n.failTo {
		return errors.New("mailbox full")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func strPtr(s string) *string { return &s }

func fixtureRepo() stubReadRepo {
	as1 := ports.Owner{ID: "AS1", Email: strPtr("a@x.com")}
	as2 := ports.Owner{ID: "AS2"}
	as3 := ports.Owner{ID: "AS3", Email: strPtr("c@x.com")}
	return stubReadRepo{
		inconsistencies: []ports.InconsistencyView{
			{ID: 1, Owner: as1, AffectedObject: "x.roa", ObjectType: "roa", Reason: "mismatch",
				AcceptingRPs: []string{"rp1"}, RejectingRPs: []string{"rp2"},
				AffectedVRPs: []ports.VRP{{Prefix: "10.0.0.0/8", ASN: "AS1"}}},
			{ID: 2, Owner: as2, AffectedObject: "y.roa", ObjectType: "roa", Reason: "mismatch"},
		},
		objectErrors: []ports.ObjectErrorView{
			{ID: 1, Owner: as3, Name: "z.cer", ObjectType: "cer", Reason: "expired"},
			{ID: 2, Owner: as1, Name: "w.mft", ObjectType: "mft", Reason: "stale"},
		},
	}
}

func TestDigestsGroupByOwnerWithEmail(t *testing.T) {
	svc := NewService(fixtureRepo(), &recordingNotifier{}, "", "")

	digests, err := svc.Digests(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, digests, 2)

	require.Equal(t, "AS1", digests[0].Owner.ID)
	require.Len(t, digests[0].Inconsistencies, 1)
	require.Len(t, digests[0].Errors, 1)
	require.Equal(t, "AS3", digests[1].Owner.ID)
	require.Empty(t, digests[1].Inconsistencies)
}

func TestDispatchRendersAndContinuesPastFailures(t *testing.T) {
	notifier := &recordingNotifier{failTo: "c@x.com"}
	svc := NewService(fixtureRepo(), notifier, "noc@example.net", "")

	result, err := svc.Dispatch(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent)
	require.Equal(t, 1, result.Failed)

	require.Len(t, notifier.sent, 1)
	msg := notifier.sent[0]
	require.Equal(t, "a@x.com", msg.To)
	require.Equal(t, "noc@example.net", msg.From)
	require.Equal(t, DefaultSubject, msg.Subject)
	for _, want := range []string{"RPKI issues for AS1", "x.roa", "Accepted by: rp1", "Rejected by: rp2", "VRP: 10.0.0.0/8 AS1", "w.mft"} {
		require.True(t, strings.Contains(msg.Body, want), "body %q missing %q", msg.Body, want)
	}
}

func TestDigestsUnknownUpdate(t *testing.T) {
	repo := fixtureRepo()
	repo.missing = true
	svc := NewService(repo, &recordingNotifier{}, "", "")

	_, err := svc.Digests(context.Background(), 99)
	require.ErrorIs(t, err, ports.ErrUpdateNotFound)
}
