package syncer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/simonmuehling/educafric-app-sub010/internal/connectivity"
	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
	"github.com/simonmuehling/educafric-app-sub010/internal/logging"
	"github.com/simonmuehling/educafric-app-sub010/internal/queue"
)

// DefaultMaxRetries is the delivery attempt bound. An action that fails
// its initial attempt plus DefaultMaxRetries retries is dropped and counted
// as a permanent failure instead of blocking the queue forever.
const DefaultMaxRetries = 3

// Status is the caller-facing sync state, recomputed on demand from the
// queue plus in-memory orchestrator state. QueueSize counts unsynced
// actions only.
type Status struct {
	IsSyncing      bool       `json:"is_syncing"`
	QueueSize      int        `json:"queue_size"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	SyncErrorCount int        `json:"sync_error_count"`
}

// StatusListener receives a fresh Status after every completed sync run.
type StatusListener func(Status)

// Orchestrator drains the action queue against the remote authority.
type Orchestrator struct {
	queue      *queue.Manager
	dispatcher Dispatcher
	maxRetries int

	// flight is the single-flight guard: a run starts only if the permit
	// is free, concurrent triggers are no-ops.
	flight *semaphore.Weighted

	mu             sync.RWMutex
	isSyncing      bool
	lastSyncTime   time.Time
	syncErrorCount int
	listeners      map[int]StatusListener
	nextListenerID int
	isRunning      bool
	stopCh         chan struct{}

	// OnAuthFailure, when set, is called once per run that saw a
	// credential rejection. The wiring layer decides whether to start a
	// login flow; sandbox sessions must not be redirected.
	OnAuthFailure func(error)

	wg sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. A non-positive maxRetries falls
// back to DefaultMaxRetries.
func NewOrchestrator(q *queue.Manager, d Dispatcher, maxRetries int) *Orchestrator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Orchestrator{
		queue:      q,
		dispatcher: d,
		maxRetries: maxRetries,
		flight:     semaphore.NewWeighted(1),
		listeners:  make(map[int]StatusListener),
	}
}

// Start launches the loop that answers connectivity signals with sync
// runs. Calling Start twice is a no-op; a stopped orchestrator can be
// started again.
func (o *Orchestrator) Start(ctx context.Context, signals <-chan connectivity.Signal) {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return
	}
	o.isRunning = true
	o.stopCh = make(chan struct{})
	stopCh := o.stopCh
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case sig := <-signals:
				logging.Debug("sync signal received", map[string]interface{}{
					"reason": string(sig.Reason),
				})
				if _, err := o.SyncAll(ctx); err != nil {
					logging.Error("sync run failed", err, nil)
				}
			}
		}
	}()

	logging.Info("sync orchestrator started", map[string]interface{}{
		"max_retries": o.maxRetries,
	})
}

// Stop shuts the signal loop down. An in-flight run completes naturally.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return
	}
	o.isRunning = false
	stopCh := o.stopCh
	o.mu.Unlock()

	close(stopCh)
	o.wg.Wait()

	logging.Info("sync orchestrator stopped", nil)
}

// TriggerSync starts a sync run in the background, for caller-initiated
// drains such as a "retry now" action. Returns false without doing
// anything when a run is already in progress.
func (o *Orchestrator) TriggerSync(ctx context.Context) bool {
	if !o.flight.TryAcquire(1) {
		return false
	}
	go func() {
		defer o.flight.Release(1)
		o.drain(ctx)
	}()
	return true
}

// SyncAll performs a synchronous sync run. Returns started=false when a
// run is already in progress; the concurrent trigger is a no-op, not
// queued.
func (o *Orchestrator) SyncAll(ctx context.Context) (started bool, err error) {
	if !o.flight.TryAcquire(1) {
		return false, nil
	}
	defer o.flight.Release(1)
	return true, o.drain(ctx)
}

// drain processes every pending action independently; one action's failure
// never aborts the run or blocks the ones after it. The caller holds the
// single-flight permit.
func (o *Orchestrator) drain(ctx context.Context) error {
	o.mu.Lock()
	o.isSyncing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.isSyncing = false
		o.lastSyncTime = time.Now()
		o.mu.Unlock()
		o.notifyListeners()
	}()

	// Sweep acceptances left behind by a crash mid-run.
	if purged, err := o.queue.PurgeSynced(); err != nil {
		return err
	} else if purged > 0 {
		logging.Warn("purged stale synced actions", map[string]interface{}{"count": purged})
	}

	pending, err := o.queue.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	logging.Info("sync run started", map[string]interface{}{"pending": len(pending)})

	delivered, dropped := 0, 0
	var authErr error

	for _, action := range pending {
		dispatchErr := o.dispatcher.Dispatch(ctx, action)
		if dispatchErr == nil {
			if err := o.queue.MarkSynced(action.ID); err != nil {
				logging.Error("failed to mark action synced", err,
					map[string]interface{}{"action_id": action.ID})
				continue
			}
			if err := o.queue.Delete(action.ID); err != nil {
				logging.Error("failed to delete synced action", err,
					map[string]interface{}{"action_id": action.ID})
				continue
			}
			delivered++
			continue
		}

		if errors.Is(dispatchErr, errors.ErrAuthFailed) && authErr == nil {
			authErr = dispatchErr
		}

		retries, err := o.queue.IncrementRetry(action.ID)
		if err != nil {
			logging.Error("failed to increment retry count", err,
				map[string]interface{}{"action_id": action.ID})
			continue
		}
		if retries == 0 {
			// Raced with a delete; nothing left to retry.
			continue
		}

		if retries > o.maxRetries {
			if err := o.queue.Delete(action.ID); err != nil {
				logging.Error("failed to drop exhausted action", err,
					map[string]interface{}{"action_id": action.ID})
				continue
			}
			o.mu.Lock()
			o.syncErrorCount++
			o.mu.Unlock()
			dropped++
			logging.Warn("action dropped after retry bound", map[string]interface{}{
				"action_id":   action.ID,
				"category":    string(action.Category),
				"retries":     retries,
				"error_code":  string(errors.CodeOf(dispatchErr)),
				"error":       dispatchErr.Error(),
				"age_seconds": time.Since(action.EnqueuedTime()).Seconds(),
			})
			continue
		}

		logging.Debug("action delivery failed, will retry", map[string]interface{}{
			"action_id":  action.ID,
			"retries":    retries,
			"error_code": string(errors.CodeOf(dispatchErr)),
			"error":      dispatchErr.Error(),
		})
	}

	if authErr != nil && o.OnAuthFailure != nil {
		o.OnAuthFailure(authErr)
	}

	logging.Info("sync run completed", map[string]interface{}{
		"delivered": delivered,
		"dropped":   dropped,
		"remaining": len(pending) - delivered - dropped,
	})

	return nil
}

// Status recomputes the caller-facing sync state.
func (o *Orchestrator) Status() Status {
	pending, err := o.queue.PendingCount()
	if err != nil {
		logging.Error("failed to count pending actions", err, nil)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	status := Status{
		IsSyncing:      o.isSyncing,
		QueueSize:      pending,
		SyncErrorCount: o.syncErrorCount,
	}
	if !o.lastSyncTime.IsZero() {
		t := o.lastSyncTime
		status.LastSyncTime = &t
	}
	return status
}

// AddStatusListener registers a listener notified after every completed
// run. The returned id removes it again.
func (o *Orchestrator) AddStatusListener(fn StatusListener) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextListenerID++
	id := o.nextListenerID
	o.listeners[id] = fn
	return id
}

// RemoveStatusListener unregisters a listener. No-op for unknown ids.
func (o *Orchestrator) RemoveStatusListener(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.listeners, id)
}

func (o *Orchestrator) notifyListeners() {
	status := o.Status()

	o.mu.RLock()
	listeners := make([]StatusListener, 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.RUnlock()

	for _, fn := range listeners {
		fn(status)
	}
}
