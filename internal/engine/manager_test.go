package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
)

type memoryRunStore struct {
	mu   sync.Mutex
	runs map[string]domain.RunView
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: make(map[string]domain.RunView)}
}

func (s *memoryRunStore) SaveRun(_ context.Context, run domain.RunView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *memoryRunStore) GetRun(_ context.Context, id string) (*domain.RunView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memoryRunStore) ListRuns(_ context.Context, limit int) ([]domain.RunView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RunView, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// blockingRunner reports 50% and then waits for release or cancellation.
type blockingRunner struct {
	started chan []string
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, urls []string, sink func(int)) (int, error) {
	sink(50)
	r.started <- urls
	select {
	case <-r.release:
		return len(urls), nil
	case <-ctx.Done():
		return 0, &domain.TaskError{Addon: "a", Phase: domain.PhaseDownload, Err: domain.ErrOperationCanceled}
	}
}

func waitForStatus(t *testing.T, m *RunManager, id string, want domain.RunStatus) domain.RunView {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		v, err := m.Get(context.Background(), id)
		if err == nil && v.Status == want {
			return v
		}
		select {
		case <-deadline:
			t.Fatalf("run %s never reached %s (last %+v, %v)", id, want, v, err)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestRunManagerProcessesRunsInOrder(t *testing.T) {
	runner := &blockingRunner{started: make(chan []string, 2), release: make(chan struct{})}
	store := newMemoryRunStore()
	m := NewRunManager(runner, store, []string{"https://example.test/addons/default"}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	first, err := m.Add(nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := m.Add([]string{"https://example.test/addons/a", "https://example.test/addons/b"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	urls := <-runner.started
	if len(urls) != 1 || urls[0] != "https://example.test/addons/default" {
		t.Fatalf("first run should use the configured addons, got %v", urls)
	}

	running := waitForStatus(t, m, first.ID, domain.StatusRunning)
	if running.Percent != 50 {
		t.Fatalf("expected live percent 50, got %d", running.Percent)
	}
	if v, _ := m.Get(context.Background(), second.ID); v.Status != domain.StatusPending {
		t.Fatalf("second run must wait, got %s", v.Status)
	}

	runner.release <- struct{}{}
	done := waitForStatus(t, m, first.ID, domain.StatusCompleted)
	if done.Changed != 1 || done.Percent != 100 || done.FinishedAt.IsZero() {
		t.Fatalf("unexpected finished run %+v", done)
	}

	<-runner.started
	runner.release <- struct{}{}
	waitForStatus(t, m, second.ID, domain.StatusCompleted)

	list, err := m.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 runs in history, got %d", len(list))
	}
}

func TestRunManagerCancel(t *testing.T) {
	runner := &blockingRunner{started: make(chan []string, 2), release: make(chan struct{})}
	m := NewRunManager(runner, newMemoryRunStore(), nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	active, err := m.Add([]string{"https://example.test/addons/a"})
	if err != nil {
		t.Fatal(err)
	}
	pending, err := m.Add([]string{"https://example.test/addons/b"})
	if err != nil {
		t.Fatal(err)
	}
	<-runner.started

	if !m.Cancel(pending.ID) {
		t.Fatal("expected pending run to be cancelable")
	}
	v := waitForStatus(t, m, pending.ID, domain.StatusFailed)
	if v.Error != "Cancelled by user" {
		t.Fatalf("unexpected error %q", v.Error)
	}

	if !m.Cancel(active.ID) {
		t.Fatal("expected running run to be cancelable")
	}
	v = waitForStatus(t, m, active.ID, domain.StatusFailed)
	if v.Error != "Cancelled by user" {
		t.Fatalf("unexpected error %q", v.Error)
	}

	if m.Cancel(active.ID) {
		t.Fatal("finished runs cannot be canceled")
	}
	if _, ok := m.Active(); ok {
		t.Fatal("no run should be active")
	}
}

func TestRunManagerRejectsBadInput(t *testing.T) {
	m := NewRunManager(&blockingRunner{}, newMemoryRunStore(), nil, logger.Nop())

	if _, err := m.Add(nil); !errors.Is(err, ErrNoAddons) {
		t.Fatalf("expected ErrNoAddons, got %v", err)
	}
	if _, err := m.Add([]string{"https://example.test/addons/a", "https://example.test/addons/a"}); err == nil {
		t.Fatal("expected duplicate addons to be rejected")
	}
	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
