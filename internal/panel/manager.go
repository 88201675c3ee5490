// Package panel maps operator chat identities to panel credential identities
// and caches one API client per identity.
package panel

import (
	"fmt"
	"sync"
	"time"

	"github.com/marzbot/marzbot/internal/config"
	"github.com/marzbot/marzbot/pkg/marzneshin"
	"github.com/rs/zerolog/log"
)

// Manager owns the per-identity client cache. Clients are constructed lazily
// and kept for the process lifetime; one client is shared by at most one
// credential identity.
type Manager struct {
	panelURL string
	timeout  time.Duration

	mu      sync.RWMutex
	admins  []config.Admin
	byChat  map[int64]config.Admin
	clients map[string]*marzneshin.Client
	secrets map[string]string // password per identity, to invalidate on change
}

// NewManager creates a manager for one panel base URL.
func NewManager(panelURL string, timeout time.Duration, admins []config.Admin) *Manager {
	m := &Manager{
		panelURL: panelURL,
		timeout:  timeout,
		clients:  map[string]*marzneshin.Client{},
		secrets:  map[string]string{},
	}
	m.SetAdmins(admins)
	return m
}

// SetAdmins replaces the admin groups, typically after a config reload.
// Cached clients survive unless their credentials changed.
func (m *Manager) SetAdmins(admins []config.Admin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.admins = admins
	m.byChat = make(map[int64]config.Admin, len(admins))
	for _, admin := range admins {
		for _, chatID := range admin.ChatIDs {
			m.byChat[chatID] = admin
		}
	}

	for username, password := range m.secrets {
		if current, ok := m.findAdminLocked(username); !ok || current.PanelPassword != password {
			delete(m.clients, username)
			delete(m.secrets, username)
			log.Info().Str("identity", username).Msg("Dropped cached panel client after credential change")
		}
	}
}

func (m *Manager) findAdminLocked(username string) (config.Admin, bool) {
	for _, admin := range m.admins {
		if admin.PanelUsername == username {
			return admin, true
		}
	}
	return config.Admin{}, false
}

// ClientFor resolves the chat ID to its admin group and returns that group's
// panel client.
func (m *Manager) ClientFor(chatID int64) (*marzneshin.Client, config.Admin, error) {
	m.mu.RLock()
	admin, ok := m.byChat[chatID]
	m.mu.RUnlock()
	if !ok {
		return nil, config.Admin{}, fmt.Errorf("no admin configuration for chat %d", chatID)
	}

	client, err := m.ClientForAdmin(admin)
	if err != nil {
		return nil, config.Admin{}, err
	}
	return client, admin, nil
}

// ClientForAdmin returns the cached client for an admin group, constructing
// it on first use.
func (m *Manager) ClientForAdmin(admin config.Admin) (*marzneshin.Client, error) {
	m.mu.RLock()
	client, ok := m.clients[admin.PanelUsername]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[admin.PanelUsername]; ok {
		return client, nil
	}

	client, err := marzneshin.NewClient(marzneshin.ClientConfig{
		BaseURL:  m.panelURL,
		Username: admin.PanelUsername,
		Password: admin.PanelPassword,
		Timeout:  m.timeout,
	})
	if err != nil {
		return nil, err
	}
	m.clients[admin.PanelUsername] = client
	m.secrets[admin.PanelUsername] = admin.PanelPassword
	return client, nil
}

// SudoClient returns the panel client of the sudo admin group, resolving the
// current sudo admin on every call so credential reloads take effect.
func (m *Manager) SudoClient() (*marzneshin.Client, error) {
	m.mu.RLock()
	var sudo *config.Admin
	for i := range m.admins {
		if m.admins[i].Sudo {
			sudo = &m.admins[i]
			break
		}
	}
	if sudo == nil && len(m.admins) > 0 {
		sudo = &m.admins[0]
	}
	m.mu.RUnlock()

	if sudo == nil {
		return nil, fmt.Errorf("no admin groups configured")
	}
	return m.ClientForAdmin(*sudo)
}

// RecipientsForOwner returns the chat IDs of every admin group whose panel
// identity matches the given owner username.
func (m *Manager) RecipientsForOwner(owner string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chatIDs []int64
	for _, admin := range m.admins {
		if admin.PanelUsername == owner {
			chatIDs = append(chatIDs, admin.ChatIDs...)
		}
	}
	return chatIDs
}

// SudoRecipients returns the chat IDs of the sudo admin group, the alerting
// identity for node monitoring.
func (m *Manager) SudoRecipients() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, admin := range m.admins {
		if admin.Sudo {
			return append([]int64(nil), admin.ChatIDs...)
		}
	}
	if len(m.admins) > 0 {
		return append([]int64(nil), m.admins[0].ChatIDs...)
	}
	return nil
}
