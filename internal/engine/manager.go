package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
	"github.com/segmentio/ksuid"
)

// Runner is satisfied by Pipeline.
type Runner interface {
	Run(ctx context.Context, urls []string, sink func(percent int)) (int, error)
}

type RunStore interface {
	SaveRun(ctx context.Context, run domain.RunView) error
	GetRun(ctx context.Context, id string) (*domain.RunView, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunView, error)
}

// ErrRunNotFound is returned when no live or stored run has the id.
var ErrRunNotFound = errors.New("run not found")

// RunManager queues batch runs. The browser is a single resource, so runs
// execute one after another.
type RunManager struct {
	mu        sync.RWMutex
	runner    Runner
	store     RunStore
	defaults  []string
	queue     []*domain.Run
	activeRun *domain.Run
	log       *logger.Logger

	newRunChan chan struct{}
}

// NewRunManager creates a manager; defaults is the configured addon list
// used when a run is added without one.
func NewRunManager(runner Runner, store RunStore, defaults []string, log *logger.Logger) *RunManager {
	return &RunManager{
		runner:     runner,
		store:      store,
		defaults:   defaults,
		log:        log,
		newRunChan: make(chan struct{}, 1),
	}
}

// Add creates a new domain.Run and notifies the Start loop
func (m *RunManager) Add(addons []string) (domain.RunView, error) {
	if len(addons) == 0 {
		addons = m.defaults
	}
	if len(addons) == 0 {
		return domain.RunView{}, ErrNoAddons
	}
	if _, err := addonNames(addons); err != nil {
		return domain.RunView{}, err
	}

	run := &domain.Run{
		ID:        ksuid.New().String(),
		Status:    domain.StatusPending,
		Addons:    append([]string(nil), addons...),
		CreatedAt: time.Now().UTC(),
	}

	// Save to database
	if err := m.store.SaveRun(context.Background(), run.View()); err != nil {
		return domain.RunView{}, fmt.Errorf("failed to save run to database: %w", err)
	}

	m.mu.Lock()
	m.queue = append(m.queue, run)
	view := run.View()
	m.mu.Unlock()

	// Signal the Start() loop that there is work to do
	select {
	case m.newRunChan <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}

	return view, nil
}

// Start processes queued runs until ctx is done.
func (m *RunManager) Start(ctx context.Context) {
	for {
		var next *domain.Run

		m.mu.RLock()
		for _, r := range m.queue {
			if r.Status == domain.StatusPending {
				next = r
				break
			}
		}
		m.mu.RUnlock()

		if next == nil {
			select {
			case <-m.newRunChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		m.mu.Lock()
		if next.Status != domain.StatusPending {
			// Cancelled between the scan and now
			m.mu.Unlock()
			continue
		}
		m.activeRun = next
		runCtx, cancel := context.WithCancel(ctx)
		next.CancelFunc = cancel
		next.Status = domain.StatusRunning
		next.StartedAt = time.Now().UTC()
		view := next.View()
		m.mu.Unlock()
		m.persist(view)

		m.log.Info("Starting run %s (%d addons)", next.ID, len(next.Addons))
		changed, err := m.runner.Run(runCtx, next.Addons, func(pct int) {
			next.Percent.Store(int32(pct))
		})

		m.finalizeRun(next, changed, err)
		cancel()
	}
}

// Get returns a live run or falls back to the stored history.
func (m *RunManager) Get(ctx context.Context, id string) (domain.RunView, error) {
	m.mu.RLock()
	for _, r := range m.queue {
		if r.ID == id {
			view := r.View()
			m.mu.RUnlock()
			return view, nil
		}
	}
	m.mu.RUnlock()

	// Get from DB as a fallback
	stored, err := m.store.GetRun(ctx, id)
	if err != nil {
		return domain.RunView{}, err
	}
	if stored == nil {
		return domain.RunView{}, ErrRunNotFound
	}
	return *stored, nil
}

// List returns live runs followed by the most recent finished ones.
func (m *RunManager) List(ctx context.Context, limit int) ([]domain.RunView, error) {
	m.mu.RLock()
	views := make([]domain.RunView, 0, len(m.queue))
	live := make(map[string]struct{}, len(m.queue))
	for _, r := range m.queue {
		views = append(views, r.View())
		live[r.ID] = struct{}{}
	}
	m.mu.RUnlock()

	history, err := m.store.ListRuns(ctx, limit)
	if err != nil {
		return views, err
	}
	for _, v := range history {
		if _, ok := live[v.ID]; !ok {
			views = append(views, v)
		}
	}
	return views, nil
}

// Active allows the UI to see what's currently running
func (m *RunManager) Active() (domain.RunView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeRun == nil {
		return domain.RunView{}, false
	}
	return m.activeRun.View(), true
}

// Cancel stops a running run or drops a pending one.
func (m *RunManager) Cancel(id string) bool {
	m.mu.Lock()

	for _, r := range m.queue {
		if r.ID != id {
			continue
		}

		switch r.Status {
		case domain.StatusRunning:
			if r.CancelFunc != nil {
				r.CancelFunc()
			}
			m.mu.Unlock()
			return true

		case domain.StatusPending:
			r.Status = domain.StatusFailed
			r.Error = "Cancelled by user"
			r.FinishedAt = time.Now().UTC()
			view := r.View()
			m.removeFromLiveQueue(r.ID)
			m.mu.Unlock()
			m.persist(view)
			return true
		}
	}

	m.mu.Unlock()
	return false
}

func (m *RunManager) finalizeRun(run *domain.Run, changed int, err error) {
	m.mu.Lock()

	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Status = domain.StatusFailed
		if domain.IsCanceled(err) {
			run.Error = "Cancelled by user"
		} else {
			run.Error = err.Error()
		}
		m.log.Error("Run %s failed: %v", run.ID, err)
	} else {
		run.Status = domain.StatusCompleted
		run.Changed = changed
		run.Percent.Store(100)
		m.log.Info("Run %s completed, %d addons updated", run.ID, changed)
	}

	view := run.View()
	m.activeRun = nil
	m.removeFromLiveQueue(run.ID)
	m.mu.Unlock()

	// Persist the final outcome
	m.persist(view)
}

func (m *RunManager) persist(view domain.RunView) {
	if err := m.store.SaveRun(context.Background(), view); err != nil {
		m.log.Warn("Failed to persist run %s: %v", view.ID, err)
	}
}

// removeFromLiveQueue keeps the active slice small by removing finished runs
func (m *RunManager) removeFromLiveQueue(id string) {
	for i, r := range m.queue {
		if r.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}
