package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marzbot/marzbot/pkg/marzneshin"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "monitoring.json"))
}

func TestDefaultState(t *testing.T) {
	store := newTestStore(t)

	if store.MonitoringEnabled() {
		t.Error("monitoring should default to disabled")
	}
	if nodes := store.Nodes(); len(nodes) != 0 {
		t.Errorf("nodes = %v, want empty", nodes)
	}
	if _, ok := store.Node("edge-1"); ok {
		t.Error("unexpected record for unknown node")
	}
}

func TestSetMonitoringEnabled_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitoring.json")
	store := New(path)

	if err := store.SetMonitoringEnabled(true); err != nil {
		t.Fatalf("SetMonitoringEnabled failed: %v", err)
	}

	// A fresh store over the same file observes the toggle.
	if !New(path).MonitoringEnabled() {
		t.Error("enabled flag did not survive reload")
	}
}

func TestUpdateNode_MergeSemantics(t *testing.T) {
	store := newTestStore(t)

	status := marzneshin.NodeUnhealthy
	message := "connection refused"
	downSince := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	alertSent := false
	if err := store.UpdateNode("edge-1", NodeUpdate{
		Status:    &status,
		Message:   &message,
		DownSince: &downSince,
		AlertSent: &alertSent,
	}); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}

	// A second update touching only alert fields must not clobber the rest.
	sent := true
	alertTime := downSince.Add(time.Minute)
	if err := store.UpdateNode("edge-1", NodeUpdate{
		AlertSent:     &sent,
		LastAlertTime: &alertTime,
	}); err != nil {
		t.Fatalf("second UpdateNode failed: %v", err)
	}

	record, ok := store.Node("edge-1")
	if !ok {
		t.Fatal("record missing after update")
	}
	if record.Status != marzneshin.NodeUnhealthy {
		t.Errorf("status = %s, want unhealthy", record.Status)
	}
	if record.Message != message {
		t.Errorf("message = %q, want %q", record.Message, message)
	}
	if record.DownSince == nil || !record.DownSince.Equal(downSince) {
		t.Errorf("down_since = %v, want %v", record.DownSince, downSince)
	}
	if !record.AlertSent {
		t.Error("alert_sent should be true after second update")
	}
	if record.LastAlertTime == nil || !record.LastAlertTime.Equal(alertTime) {
		t.Errorf("last_alert_time = %v, want %v", record.LastAlertTime, alertTime)
	}
	if record.LastUpdated.IsZero() {
		t.Error("last_updated should be stamped")
	}
}

func TestRemoveNode(t *testing.T) {
	store := newTestStore(t)

	status := marzneshin.NodeUnhealthy
	if err := store.UpdateNode("edge-1", NodeUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if err := store.RemoveNode("edge-1"); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	if _, ok := store.Node("edge-1"); ok {
		t.Error("record should be gone after removal")
	}

	// Removing an absent node is a no-op.
	if err := store.RemoveNode("edge-1"); err != nil {
		t.Errorf("removing absent node returned %v", err)
	}
}

func TestCorruptFileDegradesToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitoring.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := New(path)
	if store.MonitoringEnabled() {
		t.Error("corrupt file should degrade to disabled")
	}
	if nodes := store.Nodes(); len(nodes) != 0 {
		t.Errorf("nodes = %v, want empty", nodes)
	}
}

func TestPartialDocumentToleratesMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitoring.json")
	if err := os.WriteFile(path, []byte(`{"monitoring_enabled": true}`), 0o600); err != nil {
		t.Fatal(err)
	}

	store := New(path)
	if !store.MonitoringEnabled() {
		t.Error("enabled flag should load from partial document")
	}
	if nodes := store.Nodes(); nodes == nil || len(nodes) != 0 {
		t.Errorf("nodes = %v, want empty map", nodes)
	}
}

func TestSchemaStability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitoring.json")
	store := New(path)

	status := marzneshin.NodeUnhealthy
	downSince := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateNode("edge-1", NodeUpdate{Status: &status, DownSince: &downSince}); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if err := store.SetMonitoringEnabled(true); err != nil {
		t.Fatalf("SetMonitoringEnabled failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	for _, key := range []string{"monitoring_enabled", "nodes"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("state document missing top-level key %q", key)
		}
	}
}

func TestConcurrentWritersSerialize(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	status := marzneshin.NodeUnhealthy
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = store.UpdateNode("edge-1", NodeUpdate{Status: &status})
				store.Nodes()
				_ = store.RemoveNode("edge-2")
			}
		}()
	}
	wg.Wait()

	record, ok := store.Node("edge-1")
	if !ok || record.Status != marzneshin.NodeUnhealthy {
		t.Errorf("record after concurrent writes = %+v (ok=%v)", record, ok)
	}
}
