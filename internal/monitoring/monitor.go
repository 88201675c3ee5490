// Package monitoring runs the unattended node-health poll loop.
//
// Each cycle fetches the node list, diffs it against persisted state and
// drives a per-node alert state machine. A node is alerted on only after two
// consecutive unhealthy sightings, and re-alerted at a fixed reminder cadence
// while it stays down. The loop has no supervisor: every failure becomes a
// log line plus a skip, never a crash.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/marzbot/marzbot/internal/metrics"
	"github.com/marzbot/marzbot/internal/notifications"
	"github.com/marzbot/marzbot/internal/statestore"
	"github.com/marzbot/marzbot/pkg/marzneshin"
	"github.com/rs/zerolog/log"
)

const (
	// defaultPollInterval is the sleep between cycles. The sleep runs after
	// each cycle's work, so the effective period is interval plus work time.
	defaultPollInterval = 60 * time.Second

	// defaultReminderInterval is the minimum gap between repeat alerts for a
	// node that stays down.
	defaultReminderInterval = time.Hour

	// confirmationSightings is how many consecutive unhealthy sightings it
	// takes before the first alert. The first sighting is provisional so a
	// transient blip never pages anyone.
	confirmationSightings = 2

	// nodePageSize bounds the node-list fetch.
	nodePageSize = 100
)

// PanelClient is the slice of the panel API the monitor depends on.
type PanelClient interface {
	ListNodes(ctx context.Context, opts marzneshin.ListNodesOptions) (*marzneshin.NodePage, error)
	ResyncNode(ctx context.Context, nodeID int64) error
}

// Notifier fans an alert out to a set of recipients.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, msg notifications.Message)
}

// Config holds the monitor's tunable thresholds.
type Config struct {
	PollInterval     time.Duration
	ReminderInterval time.Duration
}

// Monitor is the node-health control loop.
type Monitor struct {
	cfg        Config
	store      *statestore.Store
	client     PanelClient
	notifier   Notifier
	recipients func() []int64

	nowFn func() time.Time
}

// New creates a monitor. The recipients func is re-evaluated every alert so
// admin reloads take effect without restarting the loop.
func New(cfg Config, store *statestore.Store, client PanelClient, notifier Notifier, recipients func() []int64) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = defaultReminderInterval
	}
	return &Monitor{
		cfg:        cfg,
		store:      store,
		client:     client,
		notifier:   notifier,
		recipients: recipients,
		nowFn:      time.Now,
	}
}

// Run executes poll cycles until ctx is cancelled. It never returns early:
// any failure inside a cycle is contained at the cycle boundary.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().
		Dur("pollInterval", m.cfg.PollInterval).
		Dur("reminderInterval", m.cfg.ReminderInterval).
		Msg("Node monitoring loop started")

	for {
		m.runCycle(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("Node monitoring loop stopped")
			return
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// runCycle performs one poll iteration.
func (m *Monitor) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic in monitoring cycle")
		}
	}()

	if !m.store.MonitoringEnabled() {
		metrics.RecordPollCycle("skipped")
		return
	}

	page, err := m.client.ListNodes(ctx, marzneshin.ListNodesOptions{Size: nodePageSize})
	if err != nil {
		metrics.RecordPollCycle("fetch_failed")
		log.Warn().Err(err).Msg("Monitoring cycle could not fetch nodes")
		return
	}

	observed := make(map[string]marzneshin.Node, len(page.Items))
	for _, node := range page.Items {
		observed[node.Name] = node
		m.processNode(ctx, node)
	}

	// Records for nodes no longer present are garbage, not health events:
	// the node was removed panel-side, so drop them silently.
	for name := range m.store.Nodes() {
		if _, ok := observed[name]; !ok {
			if err := m.store.RemoveNode(name); err != nil {
				log.Warn().Err(err).Str("node", name).Msg("Failed to drop record for removed node")
				continue
			}
			log.Info().Str("node", name).Msg("Dropped record for node no longer present on panel")
		}
	}

	metrics.NodesUnhealthy.Set(float64(len(m.store.Nodes())))
	metrics.RecordPollCycle("completed")
}

// processNode advances one node through the alert state machine. A fault here
// must not abort the remaining nodes in the cycle.
func (m *Monitor) processNode(ctx context.Context, node marzneshin.Node) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("node", node.Name).Msg("Recovered from panic while processing node")
		}
	}()

	record, exists := m.store.Node(node.Name)

	switch node.Status {
	case marzneshin.NodeUnhealthy:
		if !exists {
			m.recordFirstSighting(ctx, node)
			return
		}
		if !record.AlertSent {
			m.sendDownAlert(ctx, node)
			return
		}
		m.maybeSendReminder(ctx, node, record)

	case marzneshin.NodeHealthy:
		if exists {
			m.sendRecoveryAlert(ctx, node, record)
		}
	}
	// disabled/unknown: not a health transition, leave state as is
}

// recordFirstSighting creates the provisional record and fires a best-effort
// resync. No alert yet.
func (m *Monitor) recordFirstSighting(ctx context.Context, node marzneshin.Node) {
	log.Warn().Str("node", node.Name).Str("message", node.Message).Msg("Node detected unhealthy, attempting resync")

	if err := m.client.ResyncNode(ctx, node.ID); err != nil {
		log.Warn().Err(err).Str("node", node.Name).Msg("Resync request failed")
	}

	now := m.nowFn()
	status := marzneshin.NodeUnhealthy
	alertSent := false
	update := statestore.NodeUpdate{
		Status:    &status,
		Message:   &node.Message,
		DownSince: &now,
		AlertSent: &alertSent,
	}
	if err := m.store.UpdateNode(node.Name, update); err != nil {
		log.Error().Err(err).Str("node", node.Name).Msg("Failed to persist first unhealthy sighting")
	}
}

// sendDownAlert fires the confirmed-down alert on the second consecutive
// unhealthy sighting.
func (m *Monitor) sendDownAlert(ctx context.Context, node marzneshin.Node) {
	log.Error().Str("node", node.Name).Msg("Node confirmed down, sending alert")

	m.notifier.Notify(ctx, m.recipients(), notifications.Message{
		Text:      fmt.Sprintf("💔 *Node Down Alert*\nNode: `%s`\nError: `%s`", node.Name, node.Message),
		ParseMode: notifications.ParseModeMarkdown,
	})
	metrics.RecordNodeAlert("down")

	now := m.nowFn()
	alertSent := true
	update := statestore.NodeUpdate{
		Message:       &node.Message,
		AlertSent:     &alertSent,
		LastAlertTime: &now,
	}
	if err := m.store.UpdateNode(node.Name, update); err != nil {
		log.Error().Err(err).Str("node", node.Name).Msg("Failed to persist down alert state")
	}
}

// maybeSendReminder re-alerts once the reminder interval has elapsed since
// the last alert for a node that is still down.
func (m *Monitor) maybeSendReminder(ctx context.Context, node marzneshin.Node, record statestore.NodeRecord) {
	if record.LastAlertTime == nil {
		return
	}
	if m.nowFn().Sub(*record.LastAlertTime) < m.cfg.ReminderInterval {
		return
	}

	log.Warn().Str("node", node.Name).Msg("Node still down, sending reminder")

	m.notifier.Notify(ctx, m.recipients(), notifications.Message{
		Text:      fmt.Sprintf("⏰ *Node Reminder*\nNode: `%s` is still unhealthy.", node.Name),
		ParseMode: notifications.ParseModeMarkdown,
	})
	metrics.RecordNodeAlert("reminder")

	now := m.nowFn()
	if err := m.store.UpdateNode(node.Name, statestore.NodeUpdate{LastAlertTime: &now}); err != nil {
		log.Error().Err(err).Str("node", node.Name).Msg("Failed to persist reminder state")
	}
}

// sendRecoveryAlert announces recovery with elapsed downtime and clears the
// record.
func (m *Monitor) sendRecoveryAlert(ctx context.Context, node marzneshin.Node, record statestore.NodeRecord) {
	downtime := "unknown"
	if record.DownSince != nil {
		downtime = m.nowFn().Sub(*record.DownSince).Truncate(time.Second).String()
	}

	log.Info().Str("node", node.Name).Str("downtime", downtime).Msg("Node recovered")

	m.notifier.Notify(ctx, m.recipients(), notifications.Message{
		Text:      fmt.Sprintf("💚 *Node Recovered*\nNode: `%s` is now healthy.\nDowntime: `%s`", node.Name, downtime),
		ParseMode: notifications.ParseModeMarkdown,
	})
	metrics.RecordNodeAlert("recovery")

	if err := m.store.RemoveNode(node.Name); err != nil {
		log.Error().Err(err).Str("node", node.Name).Msg("Failed to clear record after recovery")
	}
}
