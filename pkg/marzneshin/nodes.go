package marzneshin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListNodesOptions filters and paginates ListNodes.
type ListNodesOptions struct {
	Status NodeStatus
	Name   string
	Page   int
	Size   int
}

// ListNodes fetches a page of nodes with their reported health status.
func (c *Client) ListNodes(ctx context.Context, opts ListNodesOptions) (*NodePage, error) {
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	size := opts.Size
	if size <= 0 {
		size = 10
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}

	var nodes NodePage
	if err := c.Request(ctx, http.MethodGet, "/api/nodes", q, nil, &nodes); err != nil {
		return nil, err
	}
	return &nodes, nil
}

// ResyncNode triggers a panel-side resync of the given node. It is a
// fire-and-forget remediation; callers treat failure as non-fatal.
func (c *Client) ResyncNode(ctx context.Context, nodeID int64) error {
	path := fmt.Sprintf("/api/nodes/%d/resync", nodeID)
	return c.Request(ctx, http.MethodPost, path, nil, nil, nil)
}
