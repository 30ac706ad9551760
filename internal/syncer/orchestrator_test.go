// Package syncer provides unit tests for the sync orchestrator.
package syncer

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/simonmuehling/educafric-app-sub010/internal/connectivity"
	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
	"github.com/simonmuehling/educafric-app-sub010/internal/models"
	"github.com/simonmuehling/educafric-app-sub010/internal/queue"
	"github.com/simonmuehling/educafric-app-sub010/internal/store"
)

func newTestQueue(t *testing.T) *queue.Manager {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return queue.NewManager(s)
}

// TestSyncAllDeliversPendingActions tests the happy path: three queued
// attendance actions are delivered and the queue drains.
func TestSyncAllDeliversPendingActions(t *testing.T) {
	q := newTestQueue(t)
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(models.CategoryAttendance, models.OperationCreate,
			json.RawMessage(`{"status":"present"}`), 7); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var dispatched int32
	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		atomic.AddInt32(&dispatched, 1)
		return nil
	}), 3)

	started, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if !started {
		t.Fatal("Expected the run to start")
	}

	if n := atomic.LoadInt32(&dispatched); n != 3 {
		t.Errorf("Expected 3 dispatches, got %d", n)
	}

	pending, _ := q.Pending()
	if len(pending) != 0 {
		t.Errorf("Expected empty pending set, got %d", len(pending))
	}

	status := o.Status()
	if status.LastSyncTime == nil {
		t.Error("Expected last sync time to be set")
	}
	if status.SyncErrorCount != 0 {
		t.Errorf("Expected error count 0, got %d", status.SyncErrorCount)
	}
	if status.QueueSize != 0 {
		t.Errorf("Expected queue size 0, got %d", status.QueueSize)
	}
}

// TestRetryBoundDropsPoisonAction tests the bounded-retry invariant: an
// action that always fails is attempted maxRetries+1 times in total, then
// dropped with the permanent-error counter incremented.
func TestRetryBoundDropsPoisonAction(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Enqueue(models.CategoryGrade, models.OperationCreate,
		json.RawMessage(`{"score":15.5}`), 7); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var attempts int32
	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New(errors.ErrRemoteRejection, "always declined")
	}), 3)

	for run := 1; run <= 4; run++ {
		if _, err := o.SyncAll(context.Background()); err != nil {
			t.Fatalf("Run %d failed: %v", run, err)
		}
	}

	if n := atomic.LoadInt32(&attempts); n != 4 {
		t.Errorf("Expected maxRetries+1 = 4 attempts, got %d", n)
	}

	size, _ := q.Size()
	if size != 0 {
		t.Errorf("Expected the poison action to be dropped, queue size %d", size)
	}

	if got := o.Status().SyncErrorCount; got != 1 {
		t.Errorf("Expected error count 1, got %d", got)
	}
}

// TestRetryCountIncrementsPerAttempt tests that each failed attempt bumps
// the persisted retry count by exactly one.
func TestRetryCountIncrementsPerAttempt(t *testing.T) {
	q := newTestQueue(t)
	action, _ := q.Enqueue(models.CategoryHomework, models.OperationCreate, json.RawMessage(`{}`), 7)

	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		return errors.New(errors.ErrTransportFailure, "no route")
	}), 3)

	for want := 1; want <= 3; want++ {
		o.SyncAll(context.Background())
		stored, err := q.Get(action.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if stored == nil {
			t.Fatalf("Expected action to survive run %d", want)
		}
		if stored.RetryCount != want {
			t.Errorf("After run %d: expected retry count %d, got %d", want, want, stored.RetryCount)
		}
	}
}

// TestNoRedeliveryAfterSuccess tests that a delivered action is never
// dispatched again by a later run.
func TestNoRedeliveryAfterSuccess(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(models.CategoryMessage, models.OperationCreate, json.RawMessage(`{}`), 7)

	var dispatched int32
	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		atomic.AddInt32(&dispatched, 1)
		return nil
	}), 3)

	o.SyncAll(context.Background())
	o.SyncAll(context.Background())

	if n := atomic.LoadInt32(&dispatched); n != 1 {
		t.Errorf("Expected exactly 1 dispatch across runs, got %d", n)
	}
}

// TestSingleFlight tests that a trigger during a running drain is a no-op
// returning false.
func TestSingleFlight(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(models.CategoryAttendance, models.OperationCreate, json.RawMessage(`{}`), 7)

	release := make(chan struct{})
	entered := make(chan struct{})
	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		close(entered)
		<-release
		return nil
	}), 3)

	if !o.TriggerSync(context.Background()) {
		t.Fatal("Expected the first trigger to start a run")
	}
	<-entered

	if o.TriggerSync(context.Background()) {
		t.Error("Expected the second trigger to be a no-op")
	}
	if started, _ := o.SyncAll(context.Background()); started {
		t.Error("Expected SyncAll to refuse while a run is in progress")
	}

	close(release)

	// The run finishes and the guard frees up again.
	deadline := time.After(2 * time.Second)
	for {
		if started, _ := o.SyncAll(context.Background()); started {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Expected the guard to free up after the run")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestOneFailureDoesNotBlockOthers tests per-item independence within a
// run.
func TestOneFailureDoesNotBlockOthers(t *testing.T) {
	q := newTestQueue(t)
	bad, _ := q.Enqueue(models.CategoryGrade, models.OperationCreate, json.RawMessage(`{"bad":true}`), 7)
	q.Enqueue(models.CategoryGrade, models.OperationCreate, json.RawMessage(`{"bad":false}`), 7)

	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		if a.ID == bad.ID {
			return errors.New(errors.ErrRemoteRejection, "declined")
		}
		return nil
	}), 3)

	o.SyncAll(context.Background())

	pending, _ := q.Pending()
	if len(pending) != 1 {
		t.Fatalf("Expected only the failing action to remain, got %d", len(pending))
	}
	if pending[0].ID != bad.ID {
		t.Errorf("Expected %s to remain, got %s", bad.ID, pending[0].ID)
	}
}

// TestStatusListeners tests observer registration, notification and
// removal.
func TestStatusListeners(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(models.CategoryMessage, models.OperationCreate, json.RawMessage(`{}`), 7)

	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		return nil
	}), 3)

	notified := make(chan Status, 2)
	id := o.AddStatusListener(func(s Status) { notified <- s })

	o.SyncAll(context.Background())

	select {
	case status := <-notified:
		if status.QueueSize != 0 {
			t.Errorf("Expected queue size 0 in notification, got %d", status.QueueSize)
		}
		if status.IsSyncing {
			t.Error("Expected IsSyncing=false at run completion")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a status notification")
	}

	o.RemoveStatusListener(id)
	o.SyncAll(context.Background())

	select {
	case <-notified:
		t.Error("Expected no notification after removal")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestAuthFailureHook tests that a credential rejection surfaces once per
// run through OnAuthFailure.
func TestAuthFailureHook(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(models.CategoryMessage, models.OperationCreate, json.RawMessage(`{}`), 7)
	q.Enqueue(models.CategoryMessage, models.OperationCreate, json.RawMessage(`{}`), 7)

	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		return errors.New(errors.ErrAuthFailed, "token expired")
	}), 3)

	var calls int32
	o.OnAuthFailure = func(err error) {
		atomic.AddInt32(&calls, 1)
		if !errors.Is(err, errors.ErrAuthFailed) {
			t.Errorf("Expected AUTH_FAILED, got %v", err)
		}
	}

	o.SyncAll(context.Background())

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 auth failure callback per run, got %d", n)
	}
}

// TestRestartAfterStop tests that a stopped orchestrator can be started
// again and still answers signals.
func TestRestartAfterStop(t *testing.T) {
	q := newTestQueue(t)

	dispatched := make(chan string, 1)
	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		dispatched <- a.ID
		return nil
	}), 3)

	signals := make(chan connectivity.Signal, 1)
	o.Start(context.Background(), signals)
	o.Stop()

	q.Enqueue(models.CategoryAttendance, models.OperationCreate, json.RawMessage(`{}`), 7)

	o.Start(context.Background(), signals)
	defer o.Stop()

	signals <- connectivity.Signal{Reason: connectivity.ReasonReconnect, At: time.Now()}

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the restarted loop to drive a dispatch")
	}
}

// TestRunAnswersConnectivitySignals tests the monitor-to-orchestrator
// wiring: a reconnect edge drives a sync run.
func TestRunAnswersConnectivitySignals(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(models.CategoryAttendance, models.OperationCreate, json.RawMessage(`{}`), 7)

	dispatched := make(chan string, 1)
	o := NewOrchestrator(q, DispatchFunc(func(ctx context.Context, a *models.Action) error {
		dispatched <- a.ID
		return nil
	}), 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := connectivity.NewMonitor(time.Hour)
	m.Start(ctx)
	defer m.Stop()

	o.Start(ctx, m.Signals())
	defer o.Stop()

	m.SetOnline(true)

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the reconnect edge to drive a dispatch")
	}
}
