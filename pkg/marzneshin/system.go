package marzneshin

import (
	"context"
	"net/http"
)

// ListServices fetches all services defined on the panel.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var page struct {
		Items []Service `json:"items"`
	}
	if err := c.Request(ctx, http.MethodGet, "/api/services", nil, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// SystemUserStats fetches the panel-wide user aggregate.
func (c *Client) SystemUserStats(ctx context.Context) (*UserStats, error) {
	var stats UserStats
	if err := c.Request(ctx, http.MethodGet, "/api/system/stats/users", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SystemTrafficStats fetches the panel-wide traffic aggregate.
func (c *Client) SystemTrafficStats(ctx context.Context) (*TrafficStats, error) {
	var stats TrafficStats
	if err := c.Request(ctx, http.MethodGet, "/api/system/stats/traffic", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SystemNodesStats fetches the panel-wide node health aggregate.
func (c *Client) SystemNodesStats(ctx context.Context) (*NodesStats, error) {
	var stats NodesStats
	if err := c.Request(ctx, http.MethodGet, "/api/system/stats/nodes", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SystemAdminsStats fetches the panel-wide admin count.
func (c *Client) SystemAdminsStats(ctx context.Context) (*AdminsStats, error) {
	var stats AdminsStats
	if err := c.Request(ctx, http.MethodGet, "/api/system/stats/admins", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
