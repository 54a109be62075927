package geocode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
	"github.com/EmpoweredVote/VR-Backend/internal/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*jobs.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[uuid.UUID]*jobs.Job{}}
}

func (s *memJobStore) Create(ctx context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = jobs.StatusPending
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memJobStore) Get(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memJobStore) Claim(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	switch j.Status {
	case jobs.StatusPending, jobs.StatusFailed:
	case jobs.StatusRunning:
		return nil, jobs.ErrJobActive
	default:
		return nil, jobs.ErrJobTerminal
	}
	now := time.Now()
	j.Status = jobs.StatusRunning
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (s *memJobStore) CommitChunk(ctx context.Context, job *jobs.Job, checkpoint int64, delta jobs.ChunkStats, apply jobs.ApplyFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if apply != nil {
		if err := apply(nil); err != nil {
			return err
		}
	}
	j := s.jobs[job.ID]
	j.Checkpoint = checkpoint
	j.Processed += delta.Succeeded + delta.Failed
	j.Succeeded += delta.Succeeded
	j.Failed += delta.Failed
	j.ErrorLog = append(j.ErrorLog, delta.Errors...)
	j.UpdatedAt = time.Now()
	job.Checkpoint = j.Checkpoint
	job.Processed = j.Processed
	job.Succeeded = j.Succeeded
	job.Failed = j.Failed
	return nil
}

func (s *memJobStore) Finalize(ctx context.Context, job *jobs.Job, status string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[job.ID]
	now := time.Now()
	j.Status = status
	j.FinishedAt = &now
	if cause != nil {
		j.LastError = cause.Error()
	}
	job.Status = status
	return nil
}

type memVoterStore struct {
	mu       sync.Mutex
	voters   []registry.Voter
	located  map[uuid.UUID]bool
	inserted []registry.VoterLocation

	// staleCursor serves located voters anyway, simulating a point landing
	// between the cursor fetch and chunk processing.
	staleCursor bool
}

func newMemVoterStore(voters []registry.Voter) *memVoterStore {
	return &memVoterStore{voters: voters, located: map[uuid.UUID]bool{}}
}

func (s *memVoterStore) MissingPrimaryLocation(ctx context.Context, after int64, limit int) ([]registry.Voter, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []registry.Voter
	next := after
	for _, v := range s.voters {
		if v.Seq <= after || (s.located[v.ID] && !s.staleCursor) {
			continue
		}
		out = append(out, v)
		next = v.Seq
		if len(out) == limit {
			break
		}
	}
	return out, next, nil
}

func (s *memVoterStore) HasPrimaryLocation(ctx context.Context, voterID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.located[voterID], nil
}

func (s *memVoterStore) InsertPrimaryLocations(tx *gorm.DB, locs []registry.VoterLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range locs {
		if s.located[l.VoterID] {
			return fmt.Errorf("voter %s already has a primary location", l.VoterID)
		}
		s.located[l.VoterID] = true
		s.inserted = append(s.inserted, l)
	}
	return nil
}

// fakeGeocoder resolves every address to a fixed point, with optional
// per-address transient failures.
type fakeGeocoder struct {
	mu       sync.Mutex
	calls    map[string]int
	failing  map[string]int // address → failures before success
	failWith map[string]error
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{
		calls:    map[string]int{},
		failing:  map[string]int{},
		failWith: map[string]error{},
	}
}

func (g *fakeGeocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[address]++
	if err, ok := g.failWith[address]; ok {
		return nil, err
	}
	if g.failing[address] > 0 {
		g.failing[address]--
		return nil, errors.New("transient upstream error")
	}
	return &Result{Lat: 39.4, Lng: -84.5, Formatted: address}, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func voter(seq int64, externalID, address string) registry.Voter {
	return registry.Voter{ID: uuid.New(), Seq: seq, ExternalID: externalID, Address: address}
}

func TestRunner_GeocodesMissingVoters(t *testing.T) {
	voters := []registry.Voter{
		voter(1, "OH-001", "1 First St"),
		voter(2, "OH-002", ""), // no address on file
		voter(3, "OH-003", "3 Third St"),
	}
	store := newMemVoterStore(voters)
	js := newMemJobStore()
	r := &Runner{Jobs: js, Voters: store, Client: newFakeGeocoder(), Sleep: noSleep}

	ctx := context.Background()
	job, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Run(ctx, job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, _ := js.Get(ctx, job.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Succeeded != 2 || final.Failed != 1 {
		t.Errorf("counters: succeeded=%d failed=%d", final.Succeeded, final.Failed)
	}
	if len(final.ErrorLog) != 1 || final.ErrorLog[0].Key != "OH-002" {
		t.Errorf("expected one recorded error for OH-002, got %v", final.ErrorLog)
	}

	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 inserted locations, got %d", len(store.inserted))
	}
	for _, l := range store.inserted {
		if !l.IsPrimary || l.Source != "google" {
			t.Errorf("unexpected location row: %+v", l)
		}
	}
}

func TestRunner_RetriesTransientFailures(t *testing.T) {
	voters := []registry.Voter{voter(1, "OH-001", "1 First St")}
	store := newMemVoterStore(voters)
	geo := newFakeGeocoder()
	geo.failing["1 First St"] = 2 // two failures, then success

	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	js := newMemJobStore()
	r := &Runner{Jobs: js, Voters: store, Client: geo, Sleep: sleep}

	ctx := context.Background()
	job, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Run(ctx, job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if geo.calls["1 First St"] != 3 {
		t.Errorf("expected 3 attempts, got %d", geo.calls["1 First St"])
	}
	want := []time.Duration{60 * time.Second, 120 * time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("expected backoff %v, got %v", want, delays)
	}

	final, _ := js.Get(ctx, job.ID)
	if final.Succeeded != 1 || final.Failed != 0 {
		t.Errorf("counters: succeeded=%d failed=%d", final.Succeeded, final.Failed)
	}
}

func TestRunner_ExhaustedRetriesRecordTheVoterAndContinue(t *testing.T) {
	voters := []registry.Voter{
		voter(1, "OH-001", "1 First St"),
		voter(2, "OH-002", "2 Second St"),
	}
	store := newMemVoterStore(voters)
	geo := newFakeGeocoder()
	geo.failWith["1 First St"] = errors.New("permanently broken")

	js := newMemJobStore()
	r := &Runner{Jobs: js, Voters: store, Client: geo, Sleep: noSleep}

	ctx := context.Background()
	job, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Run(ctx, job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if geo.calls["1 First St"] != jobs.RetryAttempts {
		t.Errorf("expected %d attempts, got %d", jobs.RetryAttempts, geo.calls["1 First St"])
	}

	final, _ := js.Get(ctx, job.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed despite a record failure, got %s", final.Status)
	}
	if final.Succeeded != 1 || final.Failed != 1 {
		t.Errorf("counters: succeeded=%d failed=%d", final.Succeeded, final.Failed)
	}
	if len(store.inserted) != 1 || store.inserted[0].VoterID != voters[1].ID {
		t.Errorf("expected only OH-002 to get a location")
	}
}

// A manual fix can land a point between the cursor fetch and chunk
// processing; the per-voter recheck skips the voter instead of calling the
// API again (and instead of tripping the one-primary constraint).
func TestRunner_SkipsVotersLocatedSinceCursor(t *testing.T) {
	v := voter(1, "OH-001", "1 First St")
	store := newMemVoterStore([]registry.Voter{v})
	store.staleCursor = true
	store.located[v.ID] = true

	geo := newFakeGeocoder()
	js := newMemJobStore()
	r := &Runner{Jobs: js, Voters: store, Client: geo, Sleep: noSleep}

	ctx := context.Background()
	job, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Run(ctx, job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if geo.calls["1 First St"] != 0 {
		t.Errorf("expected no geocoder calls, got %d", geo.calls["1 First St"])
	}
	final, _ := js.Get(ctx, job.ID)
	if final.Status != jobs.StatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if final.Succeeded != 1 {
		t.Errorf("expected the skipped voter counted as succeeded, got %d", final.Succeeded)
	}
	if len(store.inserted) != 0 {
		t.Errorf("expected no inserted locations, got %d", len(store.inserted))
	}
}
