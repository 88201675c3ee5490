// Package statestore persists monitoring configuration and per-node health
// records as a single JSON document.
//
// Every operation spans the full read-modify-write of the backing file inside
// one exclusive critical section; a reader never observes a partial write. An
// unreadable or missing file degrades to the default state rather than
// propagating an error - the monitoring loop has no supervisor to report to.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marzbot/marzbot/pkg/marzneshin"
	"github.com/rs/zerolog/log"
)

// NodeRecord tracks one node observed unhealthy since its last recovery. A
// record exists iff the node has an outstanding incident; healthy nodes with
// no record are the steady state.
type NodeRecord struct {
	Status        marzneshin.NodeStatus `json:"status"`
	Message       string                `json:"message"`
	DownSince     *time.Time            `json:"down_since,omitempty"`
	AlertSent     bool                  `json:"alert_sent"`
	LastAlertTime *time.Time            `json:"last_alert_time,omitempty"`
	LastUpdated   time.Time             `json:"last_updated"`
}

// NodeUpdate carries the fields a caller explicitly wants to change. Nil
// fields keep their persisted value.
type NodeUpdate struct {
	Status        *marzneshin.NodeStatus
	Message       *string
	DownSince     *time.Time
	AlertSent     *bool
	LastAlertTime *time.Time
}

type document struct {
	MonitoringEnabled bool                  `json:"monitoring_enabled"`
	Nodes             map[string]NodeRecord `json:"nodes"`
}

// Store is the single source of truth for monitoring state, durable across
// restarts.
type Store struct {
	path  string
	mu    sync.Mutex
	nowFn func() time.Time
}

// New creates a store backed by the JSON document at path. The file is
// materialized lazily on first write.
func New(path string) *Store {
	return &Store{path: path, nowFn: time.Now}
}

// MonitoringEnabled reports whether the poll loop should do work this cycle.
func (s *Store) MonitoringEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked().MonitoringEnabled
}

// SetMonitoringEnabled toggles monitoring and persists the change.
func (s *Store) SetMonitoringEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readLocked()
	doc.MonitoringEnabled = enabled
	if err := s.writeLocked(doc); err != nil {
		return err
	}
	log.Info().Bool("enabled", enabled).Msg("Monitoring state updated")
	return nil
}

// Node returns the persisted record for a node, if one exists.
func (s *Store) Node(name string) (NodeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.readLocked().Nodes[name]
	return record, ok
}

// Nodes returns a copy of all persisted node records.
func (s *Store) Nodes() map[string]NodeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.readLocked().Nodes
	out := make(map[string]NodeRecord, len(nodes))
	for name, record := range nodes {
		out[name] = record
	}
	return out
}

// UpdateNode merge-updates the record for a node: the existing record (if
// any) is loaded, the supplied fields are overlaid, last_updated is stamped,
// and the full document is written back.
func (s *Store) UpdateNode(name string, update NodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readLocked()
	record := doc.Nodes[name]

	if update.Status != nil {
		record.Status = *update.Status
	}
	if update.Message != nil {
		record.Message = *update.Message
	}
	if update.DownSince != nil {
		record.DownSince = update.DownSince
	}
	if update.AlertSent != nil {
		record.AlertSent = *update.AlertSent
	}
	if update.LastAlertTime != nil {
		record.LastAlertTime = update.LastAlertTime
	}
	record.LastUpdated = s.nowFn()

	doc.Nodes[name] = record
	return s.writeLocked(doc)
}

// RemoveNode deletes a node's record. Removing an absent node is a no-op.
func (s *Store) RemoveNode(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readLocked()
	if _, ok := doc.Nodes[name]; !ok {
		return nil
	}
	delete(doc.Nodes, name)
	return s.writeLocked(doc)
}

// readLocked loads the document, degrading to the default state on any
// failure. Caller must hold s.mu.
func (s *Store) readLocked() document {
	doc := document{Nodes: map[string]NodeRecord{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", s.path).Msg("Failed to read state file, using default state")
		}
		return doc
	}
	if len(data) == 0 {
		return doc
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("State file is corrupt, using default state")
		return document{Nodes: map[string]NodeRecord{}}
	}
	if doc.Nodes == nil {
		doc.Nodes = map[string]NodeRecord{}
	}
	return doc
}

// writeLocked persists the document via a temp file and atomic rename so a
// crash mid-write cannot truncate the previous state. Caller must hold s.mu.
func (s *Store) writeLocked(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
