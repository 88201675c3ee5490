package monitoring

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marzbot/marzbot/internal/notifications"
	"github.com/marzbot/marzbot/internal/statestore"
	"github.com/marzbot/marzbot/pkg/marzneshin"
)

type fakePanel struct {
	mu      sync.Mutex
	nodes   []marzneshin.Node
	listErr error
	resyncs []int64
}

func (f *fakePanel) ListNodes(ctx context.Context, opts marzneshin.ListNodesOptions) (*marzneshin.NodePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	items := append([]marzneshin.Node(nil), f.nodes...)
	return &marzneshin.NodePage{Items: items, Total: len(items), Page: 1, Size: opts.Size, Pages: 1}, nil
}

func (f *fakePanel) ResyncNode(ctx context.Context, nodeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncs = append(f.resyncs, nodeID)
	return nil
}

func (f *fakePanel) setNodes(nodes ...marzneshin.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = nodes
	f.listErr = nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	texts  []string
	panics bool
}

func (f *fakeNotifier) Notify(ctx context.Context, recipients []int64, msg notifications.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("notifier exploded")
	}
	f.texts = append(f.texts, msg.Text)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type harness struct {
	monitor  *Monitor
	store    *statestore.Store
	panel    *fakePanel
	notifier *fakeNotifier
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    statestore.New(filepath.Join(t.TempDir(), "monitoring.json")),
		panel:    &fakePanel{},
		notifier: &fakeNotifier{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.monitor = New(Config{PollInterval: time.Minute, ReminderInterval: time.Hour},
		h.store, h.panel, h.notifier, func() []int64 { return []int64{1} })
	h.monitor.nowFn = func() time.Time { return h.now }
	if err := h.store.SetMonitoringEnabled(true); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) cycle() {
	h.monitor.runCycle(context.Background())
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func unhealthy(name string, id int64) marzneshin.Node {
	return marzneshin.Node{ID: id, Name: name, Status: marzneshin.NodeUnhealthy, Message: "connection refused"}
}

func healthy(name string, id int64) marzneshin.Node {
	return marzneshin.Node{ID: id, Name: name, Status: marzneshin.NodeHealthy}
}

func TestFirstSighting_NoAlertButResyncAndRecord(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(unhealthy("edge-1", 7))

	h.cycle()

	if h.notifier.count() != 0 {
		t.Errorf("alerts = %d, want 0 on first sighting", h.notifier.count())
	}
	if len(h.panel.resyncs) != 1 || h.panel.resyncs[0] != 7 {
		t.Errorf("resyncs = %v, want [7]", h.panel.resyncs)
	}

	record, ok := h.store.Node("edge-1")
	if !ok {
		t.Fatal("record should exist after first sighting")
	}
	if record.AlertSent {
		t.Error("alert_sent should be false after first sighting")
	}
	if record.DownSince == nil || !record.DownSince.Equal(h.now) {
		t.Errorf("down_since = %v, want %v", record.DownSince, h.now)
	}
}

func TestSecondSighting_SendsExactlyOneDownAlert(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(unhealthy("edge-1", 7))

	h.cycle()
	h.advance(time.Minute)
	h.cycle()

	if h.notifier.count() != 1 {
		t.Fatalf("alerts = %d, want 1 after confirmation", h.notifier.count())
	}
	if !strings.Contains(h.notifier.texts[0], "Node Down Alert") {
		t.Errorf("alert text = %q", h.notifier.texts[0])
	}

	record, _ := h.store.Node("edge-1")
	if !record.AlertSent {
		t.Error("alert_sent should be true after down alert")
	}
	if record.LastAlertTime == nil || !record.LastAlertTime.Equal(h.now) {
		t.Errorf("last_alert_time = %v, want %v", record.LastAlertTime, h.now)
	}
	if len(h.panel.resyncs) != 1 {
		t.Errorf("resyncs = %v, want only the initial one", h.panel.resyncs)
	}
}

func TestReminder_DebouncedToReminderInterval(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(unhealthy("edge-1", 7))

	h.cycle() // provisional
	h.advance(time.Minute)
	h.cycle() // down alert

	// Cycles within the hour stay silent.
	for i := 0; i < 5; i++ {
		h.advance(time.Minute)
		h.cycle()
	}
	if h.notifier.count() != 1 {
		t.Fatalf("alerts = %d, want still 1 inside reminder window", h.notifier.count())
	}

	// First cycle at >= 1h since the last alert fires exactly one reminder.
	h.advance(time.Hour)
	h.cycle()
	if h.notifier.count() != 2 {
		t.Fatalf("alerts = %d, want 2 after reminder window", h.notifier.count())
	}
	if !strings.Contains(h.notifier.texts[1], "Node Reminder") {
		t.Errorf("reminder text = %q", h.notifier.texts[1])
	}

	// And the window resets.
	h.advance(time.Minute)
	h.cycle()
	if h.notifier.count() != 2 {
		t.Errorf("alerts = %d, want 2 right after a reminder", h.notifier.count())
	}
}

func TestRecovery_SendsAlertAndClearsRecord(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(unhealthy("edge-1", 7))

	h.cycle()
	h.advance(time.Minute)
	h.cycle()

	h.advance(time.Minute)
	h.panel.setNodes(healthy("edge-1", 7))
	h.cycle()

	if h.notifier.count() != 2 {
		t.Fatalf("alerts = %d, want down + recovery", h.notifier.count())
	}
	if !strings.Contains(h.notifier.texts[1], "Node Recovered") {
		t.Errorf("recovery text = %q", h.notifier.texts[1])
	}
	if !strings.Contains(h.notifier.texts[1], "2m0s") {
		t.Errorf("recovery text should carry downtime, got %q", h.notifier.texts[1])
	}
	if _, ok := h.store.Node("edge-1"); ok {
		t.Error("record should be deleted immediately after recovery")
	}
}

// The three-cycle scenario: healthy→unhealthy→unhealthy→healthy with a 60s
// interval and 1h reminder threshold yields exactly one down alert and one
// recovery alert, zero reminders.
func TestScenario_EdgeNodeFlap(t *testing.T) {
	h := newHarness(t)

	h.panel.setNodes(healthy("edge-1", 7))
	h.cycle()
	if h.notifier.count() != 0 {
		t.Fatal("healthy steady state should not alert")
	}

	h.advance(time.Minute)
	h.panel.setNodes(unhealthy("edge-1", 7))
	h.cycle() // record created, no alert
	h.advance(time.Minute)
	h.cycle() // alert #1
	h.advance(time.Minute)
	h.panel.setNodes(healthy("edge-1", 7))
	h.cycle() // recovery

	if h.notifier.count() != 2 {
		t.Fatalf("alerts = %d, want exactly 2 (down + recovery)", h.notifier.count())
	}
	for _, text := range h.notifier.texts {
		if strings.Contains(text, "Reminder") {
			t.Errorf("unexpected reminder alert: %q", text)
		}
	}
	if _, ok := h.store.Node("edge-1"); ok {
		t.Error("no record should remain after the flap resolved")
	}
}

func TestHealthyWithoutRecord_IsNoop(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(healthy("edge-1", 7), marzneshin.Node{ID: 8, Name: "edge-2", Status: marzneshin.NodeDisabled})

	h.cycle()

	if h.notifier.count() != 0 {
		t.Error("healthy and disabled nodes without records must not alert")
	}
	if len(h.store.Nodes()) != 0 {
		t.Error("no records should be created")
	}
}

func TestVanishedNode_RecordDroppedSilently(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(unhealthy("edge-1", 7))
	h.cycle()
	h.advance(time.Minute)
	h.cycle() // down alert sent

	h.advance(time.Minute)
	h.panel.setNodes() // node removed panel-side
	h.cycle()

	if _, ok := h.store.Node("edge-1"); ok {
		t.Error("record for vanished node should be garbage-collected")
	}
	if h.notifier.count() != 1 {
		t.Errorf("alerts = %d, want 1 (no recovery alert for removal)", h.notifier.count())
	}
}

func TestMonitoringDisabled_CycleIsNoop(t *testing.T) {
	h := newHarness(t)
	if err := h.store.SetMonitoringEnabled(false); err != nil {
		t.Fatal(err)
	}
	h.panel.setNodes(unhealthy("edge-1", 7))

	h.cycle()

	if h.notifier.count() != 0 || len(h.store.Nodes()) != 0 || len(h.panel.resyncs) != 0 {
		t.Error("disabled monitoring must not touch panel or state")
	}
}

func TestFetchFailure_CycleSkipsWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	h.panel.setNodes(unhealthy("edge-1", 7))
	h.cycle()

	h.panel.mu.Lock()
	h.panel.listErr = stderrors.New("panel unreachable")
	h.panel.mu.Unlock()

	h.advance(time.Minute)
	h.cycle()

	if _, ok := h.store.Node("edge-1"); !ok {
		t.Error("fetch failure must not drop existing records")
	}
	if h.notifier.count() != 0 {
		t.Error("fetch failure must not alert")
	}
}

func TestNotifierPanic_DoesNotKillCycle(t *testing.T) {
	h := newHarness(t)
	h.notifier.panics = true
	h.panel.setNodes(unhealthy("edge-1", 7), unhealthy("edge-2", 8))
	h.cycle()
	h.advance(time.Minute)

	// Both nodes reach the confirmed state; the panicking notifier must not
	// abort the second node or the cycle.
	h.cycle()

	for _, name := range []string{"edge-1", "edge-2"} {
		if _, ok := h.store.Node(name); !ok {
			t.Errorf("record for %s missing after panicking notifier", name)
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	h := newHarness(t)
	h.monitor.cfg.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.monitor.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
