package marzneshin

import "time"

// NodeStatus is the health status the panel reports for a node.
type NodeStatus string

const (
	NodeHealthy   NodeStatus = "healthy"
	NodeUnhealthy NodeStatus = "unhealthy"
	NodeDisabled  NodeStatus = "disabled"
	NodeUnknown   NodeStatus = "unknown"
)

// Node is a proxy-serving host managed by the panel.
type Node struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	Port             int        `json:"port"`
	Status           NodeStatus `json:"status"`
	Message          string     `json:"message"`
	UsageCoefficient float64    `json:"usage_coefficient"`
	XrayVersion      string     `json:"xray_version"`
}

// NodePage is a paginated node-list response.
type NodePage struct {
	Items []Node `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Pages int    `json:"pages"`
}

// User is a panel subscriber account. Unknown fields in the panel response
// are ignored; a null data_limit decodes to 0.
type User struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Key                 string     `json:"key"`
	DataLimit           int64      `json:"data_limit"`
	ExpireStrategy      string     `json:"expire_strategy"`
	ExpireDate          *time.Time `json:"expire_date,omitempty"`
	ServiceIDs          []int64    `json:"service_ids"`
	Activated           bool       `json:"activated"`
	IsActive            bool       `json:"is_active"`
	Expired             bool       `json:"expired"`
	DataLimitReached    bool       `json:"data_limit_reached"`
	Enabled             bool       `json:"enabled"`
	UsedTraffic         int64      `json:"used_traffic"`
	LifetimeUsedTraffic int64      `json:"lifetime_used_traffic"`
	Note                string     `json:"note,omitempty"`
	OwnerUsername       string     `json:"owner_username,omitempty"`
	OnlineAt            *time.Time `json:"online_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	SubUpdatedAt        *time.Time `json:"sub_updated_at,omitempty"`
	SubLastUserAgent    string     `json:"sub_last_user_agent,omitempty"`
	SubscriptionURL     string     `json:"subscription_url,omitempty"`
}

// UserPage is a paginated user-list response.
type UserPage struct {
	Items []User `json:"items"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Pages int    `json:"pages"`
}

// Service groups users under a shared inbound configuration.
type Service struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	UserIDs []int64 `json:"user_ids"`
}

// UserStats is the panel-wide user aggregate.
type UserStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	OnHold  int `json:"on_hold"`
	Expired int `json:"expired"`
	Limited int `json:"limited"`
	Online  int `json:"online"`
}

// TrafficStats is the panel-wide traffic aggregate. Usage rows may carry
// null cells, hence the pointer elements.
type TrafficStats struct {
	Step   int64      `json:"step"`
	Total  int64      `json:"total"`
	Usages [][]*int64 `json:"usages"`
}

// NodesStats is the panel-wide node health aggregate.
type NodesStats struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// AdminsStats is the panel-wide admin count.
type AdminsStats struct {
	Total int `json:"total"`
}

// UserCreate is the payload for creating a user.
type UserCreate struct {
	Username       string     `json:"username"`
	DataLimit      int64      `json:"data_limit"`
	ExpireStrategy string     `json:"expire_strategy"`
	ExpireDate     *time.Time `json:"expire_date,omitempty"`
	UsageDuration  *int64     `json:"usage_duration,omitempty"`
	ServiceIDs     []int64    `json:"service_ids"`
	Note           string     `json:"note,omitempty"`
}

// UserUpdate is the payload for modifying a user. Nil fields are left
// untouched by the panel.
type UserUpdate struct {
	DataLimit      *int64     `json:"data_limit,omitempty"`
	ExpireStrategy *string    `json:"expire_strategy,omitempty"`
	ExpireDate     *time.Time `json:"expire_date,omitempty"`
	UsageDuration  *int64     `json:"usage_duration,omitempty"`
	ServiceIDs     []int64    `json:"service_ids,omitempty"`
	Note           *string    `json:"note,omitempty"`
}
