package workflows_test

import (
	"context"
	"errors"
	"testing"

	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
	"github.com/samirrijal/seoulbike/internal/workflows"
)

type memTrips struct {
	trips map[string]domain.TripRecord
}

func (m *memTrips) Upsert(ctx context.Context, t *domain.TripRecord) (bool, error) {
	if _, ok := m.trips[t.Key]; ok {
		return false, nil
	}
	m.trips[t.Key] = *t
	return true, nil
}

func (m *memTrips) GetByKey(ctx context.Context, key string) (*domain.TripRecord, error) {
	t, ok := m.trips[key]
	if !ok {
		return nil, domain.ErrTripNotFound
	}
	return &t, nil
}

func (m *memTrips) List(ctx context.Context, f domain.TripFilter) ([]domain.TripRecord, int, error) {
	return nil, len(m.trips), nil
}

type archivedPub struct {
	archived []string
	err      error
}

func (p *archivedPub) PublishSnapshot(ctx context.Context, s *domain.Snapshot) error { return nil }
func (p *archivedPub) PublishSetChanges(ctx context.Context, c domain.SetChanges) error {
	return nil
}
func (p *archivedPub) PublishTrip(ctx context.Context, t *domain.TripRecord) error { return nil }
func (p *archivedPub) PublishTripArchived(ctx context.Context, t *domain.TripRecord) error {
	if p.err != nil {
		return p.err
	}
	p.archived = append(p.archived, t.Key)
	return nil
}

func runArchive(t *testing.T, repo *memTrips, pub *archivedPub, trip domain.TripRecord) workflows.TripArchiveResult {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(&workflows.TripActivities{Trips: usecases.NewTripService(repo, pub)})

	env.ExecuteWorkflow(workflows.TripArchiveWorkflow, workflows.TripArchiveInput{Trip: trip})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}
	var res workflows.TripArchiveResult
	if err := env.GetWorkflowResult(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res
}

func TestTripArchiveWorkflow_NewTrip(t *testing.T) {
	repo := &memTrips{trips: map[string]domain.TripRecord{}}
	pub := &archivedPub{}

	res := runArchive(t, repo, pub, domain.TripRecord{Key: "777", Bike: "SPB-1", Period: "history"})
	if !res.Inserted || !res.Notified {
		t.Errorf("expected inserted and notified, got %+v", res)
	}
	if _, ok := repo.trips["777"]; !ok {
		t.Error("trip not stored")
	}
	if len(pub.archived) != 1 || pub.archived[0] != "777" {
		t.Errorf("unexpected notifications: %v", pub.archived)
	}
}

func TestTripArchiveWorkflow_KnownTripSkipsNotify(t *testing.T) {
	repo := &memTrips{trips: map[string]domain.TripRecord{"777": {Key: "777"}}}
	pub := &archivedPub{}

	res := runArchive(t, repo, pub, domain.TripRecord{Key: "777"})
	if res.Inserted || res.Notified {
		t.Errorf("expected no-op, got %+v", res)
	}
	if len(pub.archived) != 0 {
		t.Errorf("known trip must not be announced: %v", pub.archived)
	}
}

func TestTripArchiveWorkflow_NotifyFailureKeepsArchive(t *testing.T) {
	repo := &memTrips{trips: map[string]domain.TripRecord{}}
	pub := &archivedPub{err: errors.New("nats down")}

	res := runArchive(t, repo, pub, domain.TripRecord{Key: "778"})
	if !res.Inserted || res.Notified {
		t.Errorf("expected inserted without notification, got %+v", res)
	}
	if _, ok := repo.trips["778"]; !ok {
		t.Error("archive must survive a failed notification")
	}
}

func TestWorkflowID(t *testing.T) {
	if got := workflows.WorkflowID("777"); got != "trip-777" {
		t.Errorf("WorkflowID = %q", got)
	}
}
