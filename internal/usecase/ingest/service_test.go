package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rpkimon/internal/domain/rpki"
	"rpkimon/internal/infrastructure/metrics"
	"rpkimon/internal/infrastructure/persistence/relational/model"
	"rpkimon/internal/infrastructure/persistence/relational/repository"
	"rpkimon/internal/infrastructure/persistence/relational/uow"
	"rpkimon/internal/ports"
)

type testCache struct {
	data map[string]string
}

func newTestCache() *testCache {
	return &testCache{data: make(map[string]string)}
}

func (c *testCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *testCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *testCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

type fixture struct {
	svc     *Service
	repo    *repository.RPKIRepository
	db      *gorm.DB
	cache   *testCache
	metrics *metrics.Metrics
}

func setupService(t *testing.T, options Options) fixture {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "ingest.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(model.All()...))

	repo := repository.NewRPKIRepository(db)
	cache := newTestCache()
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(repo, uow.NewUnitOfWork(db), cache, m, options)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, repo: repo, db: db, cache: cache, metrics: m}
}

func (f fixture) count(t *testing.T, row any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(row).Count(&n).Error)
	return n
}

const (
	t1 = "2024-01-01T00:00:00Z"
	t2 = "2024-01-02T00:00:00Z"
)

func TestGhostbustersKeepFirstSeenOwner(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
	})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t2 + `","Contacts":[{"Owner":"AS1","EmailAddress":"b@x.com"}]}`),
	})
	require.NoError(t, err)

	require.EqualValues(t, 1, f.count(t, &model.Owner{}))
	owner, err := f.repo.GetOwner(ctx, "AS1")
	require.NoError(t, err)
	require.NotNil(t, owner.Email)
	require.Equal(t, "a@x.com", *owner.Email)
	require.True(t, owner.TimeStamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.EntitiesCreated.WithLabelValues("owner")))
}

func TestUnreachabilitiesAreAppendOnly(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()
	doc := []byte(`{"Time":"` + t1 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","URLs":["u1"],"CommunicationTypes":["rsync"],"ErrorMessages":["timeout"]}]}`)

	first, err := f.svc.Run(ctx, RunInput{Repositories: doc})
	require.NoError(t, err)
	second, err := f.svc.Run(ctx, RunInput{Repositories: doc})
	require.NoError(t, err)
	require.NotEqual(t, first.Update.ID, second.Update.ID)
	require.NotEqual(t, first.Update.RunID, second.Update.RunID)

	require.EqualValues(t, 2, f.count(t, &model.Unreachability{}))
	require.EqualValues(t, 1, f.count(t, &model.PublicationPoint{}))
	require.EqualValues(t, 1, f.count(t, &model.ErrorMessage{}))

	for _, result := range []RunResult{first, second} {
		items, err := f.svc.ListUnreachabilities(ctx, ports.EventFilter{UpdateID: result.Update.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
	}
}

func TestPublicationPointAssociationsOnlyOnCreate(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t1 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","URLs":["A"],"CommunicationTypes":["rsync"]}]}`),
	})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t2 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","URLs":["A","B"],"CommunicationTypes":["rsync","rrdp"]}]}`),
	})
	require.NoError(t, err)

	point, err := f.repo.GetPublicationPoint(ctx, "rsync://r1")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, point.URLs)
	require.Equal(t, []string{"rsync"}, point.CommunicationTypes)
	require.EqualValues(t, 1, f.count(t, &model.URL{}))
}

func TestPublicationPointAssociationsMerge(t *testing.T) {
	f := setupService(t, Options{MergePublicationPointAssociations: true})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t1 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","URLs":["A"]}]}`),
	})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t2 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","URLs":["A","B"]}]}`),
	})
	require.NoError(t, err)

	point, err := f.repo.GetPublicationPoint(ctx, "rsync://r1")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, point.URLs)
}

func TestOwnerSharedAcrossBatchesOfOneRun(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	result, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
		Objects: []byte(`{"Time":"` + t2 + `",
			"Inconsistencies":[{"Owner":"AS1","ObjectName":"x.roa","ObjectType":"roa","Reason":"r","AcceptingRPs":["rp1"],"RejectingRPs":["rp1"],"AffectedVRPs":[{"Prefix":"10.0.0.0/8","ASN":"AS1"}]}],
			"Errors":[{"Owner":"AS2","ObjectName":"y.cer","ObjectType":"cer","Reason":"expired","AffectedVRPs":[{"Prefix":"10.0.0.0/8","ASN":"AS1"}]}]}`),
	})
	require.NoError(t, err)
	require.Len(t, result.Batches, 2)

	require.EqualValues(t, 2, f.count(t, &model.Owner{}))
	require.EqualValues(t, 1, f.count(t, &model.VRP{}))
	require.EqualValues(t, 1, f.count(t, &model.RelyingParty{}))
	require.EqualValues(t, 2, f.count(t, &model.InconsistencyRelyingParty{}))

	owner, err := f.repo.GetOwner(ctx, "AS1")
	require.NoError(t, err)
	require.NotNil(t, owner.Email)
	require.True(t, owner.TimeStamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	other, err := f.repo.GetOwner(ctx, "AS2")
	require.NoError(t, err)
	require.Nil(t, other.Email)

	events, err := f.svc.ListUpdateEvents(ctx, result.Update.ID)
	require.NoError(t, err)
	require.Len(t, events.Inconsistencies, 1)
	require.Len(t, events.Errors, 1)
	require.Equal(t, []string{"rp1"}, events.Inconsistencies[0].AcceptingRPs)
	require.Equal(t, []string{"rp1"}, events.Inconsistencies[0].RejectingRPs)
	require.Equal(t, events.Inconsistencies[0].AffectedVRPs[0].ID, events.Errors[0].AffectedVRPs[0].ID)
	require.EqualValues(t, 1, events.Update.Inconsistencies)
	require.EqualValues(t, 1, events.Update.Errors)
}

func TestObjectsBeforeGhostbustersLeavesOwnerWithoutEmail(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Objects: []byte(`{"Time":"` + t1 + `","Errors":[{"Owner":"AS1","ObjectName":"y.cer","ObjectType":"cer","Reason":"expired"}]}`),
	})
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t2 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
	})
	require.NoError(t, err)

	owner, err := f.repo.GetOwner(ctx, "AS1")
	require.NoError(t, err)
	require.Nil(t, owner.Email)
}

func TestErrorMessageSharedByUnreachabilities(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	result, err := f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t1 + `","UnreachablePublicationPoints":[
			{"Repository":"rsync://r1","ErrorMessages":["timeout"]},
			{"Repository":"rsync://r2","ErrorMessages":["timeout","refused"]}]}`),
	})
	require.NoError(t, err)

	require.EqualValues(t, 2, f.count(t, &model.ErrorMessage{}))
	items, err := f.svc.ListUnreachabilities(ctx, ports.EventFilter{UpdateID: result.Update.ID})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "timeout", items[0].ErrorMessages[0].Text)
	require.Len(t, items[1].ErrorMessages, 2)

	var shared bool
	for _, m := range items[1].ErrorMessages {
		if m.ID == items[0].ErrorMessages[0].ID {
			shared = true
		}
	}
	require.True(t, shared, "timeout message should be one row reachable from both events")
}

func TestEndToEndScenario(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
	})
	require.NoError(t, err)

	owner, err := f.repo.GetOwner(ctx, "AS1")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", *owner.Email)
	require.True(t, owner.TimeStamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	result, err := f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t2 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","URLs":["u1"],"CommunicationTypes":["rsync"],"ErrorMessages":["timeout"]}]}`),
	})
	require.NoError(t, err)

	events, err := f.svc.ListUpdateEvents(ctx, result.Update.ID)
	require.NoError(t, err)
	require.Len(t, events.Unreachabilities, 1)
	got := events.Unreachabilities[0]
	require.True(t, got.TimeStamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "rsync://r1", got.PublicationPoint.Repository)
	require.Equal(t, []string{"u1"}, got.PublicationPoint.URLs)
	require.Equal(t, []string{"rsync"}, got.PublicationPoint.CommunicationTypes)
	require.Len(t, got.ErrorMessages, 1)
	require.Equal(t, "timeout", got.ErrorMessages[0].Text)
	require.EqualValues(t, 1, f.count(t, &model.PublicationPoint{}))
}

func TestMalformedRecordsAreSkippedAndReported(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	result, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"},{"EmailAddress":"b@x.com"}]}`),
		Repositories: []byte(`not json`),
		Objects:      []byte(`{"Time":"` + t1 + `","Errors":[{"Owner":"AS1","ObjectType":"cer","Reason":"r"},{"Owner":"AS1","ObjectName":"y","ObjectType":"cer","Reason":"r"}]}`),
	})
	require.NoError(t, err)
	require.Len(t, result.Batches, 3)

	require.Equal(t, BatchGhostbusters, result.Batches[0].Batch)
	require.Equal(t, 1, result.Batches[0].Ingested())
	require.Len(t, result.Batches[0].Failures(), 1)
	require.Equal(t, 1, result.Batches[0].Failures()[0].Index)

	require.NotEmpty(t, result.Batches[1].Err)
	require.Equal(t, 1, result.Batches[2].Ingested())
	require.Equal(t, 2, result.Failures())

	require.EqualValues(t, 1, f.count(t, &model.ObjectError{}))
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.Records.WithLabelValues(rpki.KindContact, ports.OutcomeSkipped)))

	last, found, err := f.svc.LastRun(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, result.Update.ID, last.UpdateID)
	require.Equal(t, 2, last.Ingested)
	require.Equal(t, 2, last.Skipped)
	require.Equal(t, []string{BatchRepositories}, last.Rejected)
}

func TestAtomicRunRollsBackOnMalformedRecord(t *testing.T) {
	f := setupService(t, Options{Atomic: true})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
		Objects:      []byte(`{"Time":"` + t1 + `","Errors":[{"Owner":"AS1"}]}`),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, rpki.ErrMalformedRecord)

	require.EqualValues(t, 0, f.count(t, &model.Update{}))
	require.EqualValues(t, 0, f.count(t, &model.Owner{}))
	_, found, err := f.svc.LastRun(ctx)
	require.NoError(t, err)
	require.False(t, found)

	require.EqualValues(t, 0, testutil.ToFloat64(f.metrics.UpdatesCreated))
	require.EqualValues(t, 0, testutil.ToFloat64(f.metrics.EntitiesCreated.WithLabelValues("owner")))
	require.EqualValues(t, 0, testutil.ToFloat64(f.metrics.Records.WithLabelValues(rpki.KindContact, ports.OutcomeIngested)))
}

func TestAtomicRunPublishesCountersAfterCommit(t *testing.T) {
	f := setupService(t, Options{Atomic: true})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
		Objects:      []byte(`{"Time":"` + t1 + `","Errors":[{"Owner":"AS1","ObjectName":"y","ObjectType":"cer","Reason":"r"}]}`),
	})
	require.NoError(t, err)

	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.UpdatesCreated))
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.EntitiesCreated.WithLabelValues("owner")))
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.Records.WithLabelValues(rpki.KindContact, ports.OutcomeIngested)))
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.Records.WithLabelValues(rpki.KindObjectError, ports.OutcomeIngested)))
}

func TestAtomicRunRollsBackOnRejectedBatch(t *testing.T) {
	f := setupService(t, Options{Atomic: true})
	ctx := context.Background()

	_, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
		Repositories: []byte(`{"UnreachablePublicationPoints":[]}`),
	})
	require.ErrorIs(t, err, rpki.ErrTimeRequired)
	require.EqualValues(t, 0, f.count(t, &model.Owner{}))
}

type failingRepo struct {
	ports.RPKIRepository
	err error
}

func (r failingRepo) CreateUnreachability(context.Context, ports.UnreachabilityCreate) (uint64, error) {
	return 0, r.err
}

func TestStoreErrorStopsRun(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()
	storeErr := errors.New("store unavailable")
	f.svc.repo = failingRepo{RPKIRepository: f.repo, err: storeErr}

	result, err := f.svc.Run(ctx, RunInput{
		Ghostbusters: []byte(`{"Time":"` + t1 + `","Contacts":[{"Owner":"AS1","EmailAddress":"a@x.com"}]}`),
		Repositories: []byte(`{"Time":"` + t1 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1"}]}`),
		Objects:      []byte(`{"Time":"` + t1 + `","Errors":[{"Owner":"AS1","ObjectName":"y","ObjectType":"cer","Reason":"r"}]}`),
	})
	require.ErrorIs(t, err, storeErr)
	require.Len(t, result.Batches, 2)

	// Records committed before the failure stay.
	require.EqualValues(t, 1, f.count(t, &model.Owner{}))
	require.EqualValues(t, 0, f.count(t, &model.ObjectError{}))
	// The failed record's transaction rolled back its publication point.
	require.EqualValues(t, 0, f.count(t, &model.PublicationPoint{}))
}

func TestDeleteUpdateKeepsDimensions(t *testing.T) {
	f := setupService(t, Options{})
	ctx := context.Background()

	result, err := f.svc.Run(ctx, RunInput{
		Repositories: []byte(`{"Time":"` + t1 + `","UnreachablePublicationPoints":[{"Repository":"rsync://r1","ErrorMessages":["timeout"]}]}`),
		Objects:      []byte(`{"Time":"` + t1 + `","Inconsistencies":[{"Owner":"AS1","ObjectName":"x","ObjectType":"roa","Reason":"r","AcceptingRPs":["rp1"]}]}`),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUpdate(ctx, result.Update.ID))
	require.ErrorIs(t, f.svc.DeleteUpdate(ctx, result.Update.ID), ports.ErrUpdateNotFound)

	require.EqualValues(t, 0, f.count(t, &model.Unreachability{}))
	require.EqualValues(t, 0, f.count(t, &model.Inconsistency{}))
	require.EqualValues(t, 0, f.count(t, &model.InconsistencyRelyingParty{}))
	require.EqualValues(t, 1, f.count(t, &model.Owner{}))
	require.EqualValues(t, 1, f.count(t, &model.PublicationPoint{}))
	require.EqualValues(t, 1, f.count(t, &model.RelyingParty{}))
	require.EqualValues(t, 1, f.count(t, &model.ErrorMessage{}))

	updates, err := f.svc.ListUpdates(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, updates)
}

func TestServiceRequiresRepository(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, Options{})
	_, err := svc.BeginUpdate(context.Background())
	require.ErrorIs(t, err, errRepositoryRequired)
}
