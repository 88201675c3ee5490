package marzneshin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/marzbot/marzbot/internal/errors"
	"github.com/rs/zerolog/log"
)

// ListUsersOptions filters and paginates ListUsers. Pointer fields are
// tri-state: nil means "do not filter on this".
type ListUsersOptions struct {
	Username         string
	OrderBy          string
	Descending       *bool
	IsActive         *bool
	Activated        *bool
	Expired          *bool
	DataLimitReached *bool
	Enabled          *bool
	OwnerUsername    string
	Page             int
	Size             int
}

func (o ListUsersOptions) query() url.Values {
	page := o.Page
	if page <= 0 {
		page = 1
	}
	size := o.Size
	if size <= 0 {
		size = 10
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	if o.Username != "" {
		q.Set("username", o.Username)
	}
	if o.OrderBy != "" {
		q.Set("order_by", o.OrderBy)
	}
	if o.OwnerUsername != "" {
		q.Set("owner_username", o.OwnerUsername)
	}
	setBool := func(key string, v *bool) {
		if v != nil {
			q.Set(key, strconv.FormatBool(*v))
		}
	}
	setBool("descending", o.Descending)
	setBool("is_active", o.IsActive)
	setBool("activated", o.Activated)
	setBool("expired", o.Expired)
	setBool("data_limit_reached", o.DataLimitReached)
	setBool("enabled", o.Enabled)

	return q
}

// GetUser fetches a single user by username.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	if err := c.Request(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers fetches a page of users matching the given filters.
func (c *Client) ListUsers(ctx context.Context, opts ListUsersOptions) (*UserPage, error) {
	var page UserPage
	if err := c.Request(ctx, http.MethodGet, "/api/users", opts.query(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateUser creates a new user and returns the panel's view of it.
func (c *Client) CreateUser(ctx context.Context, payload UserCreate) (*User, error) {
	var user User
	if err := c.Request(ctx, http.MethodPost, "/api/users", nil, payload, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser modifies an existing user and returns the updated record.
func (c *Client) UpdateUser(ctx context.Context, username string, payload UserUpdate) (*User, error) {
	var user User
	if err := c.Request(ctx, http.MethodPut, "/api/users/"+url.PathEscape(username), nil, payload, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user from the panel.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	return c.Request(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(username), nil, nil, nil)
}

// EnableUser re-enables a disabled user.
func (c *Client) EnableUser(ctx context.Context, username string) error {
	return c.Request(ctx, http.MethodPost, "/api/users/"+url.PathEscape(username)+"/enable", nil, nil, nil)
}

// DisableUser disables a user without deleting it.
func (c *Client) DisableUser(ctx context.Context, username string) error {
	return c.Request(ctx, http.MethodPost, "/api/users/"+url.PathEscape(username)+"/disable", nil, nil, nil)
}

// ResetUsage zeroes a user's traffic counter.
func (c *Client) ResetUsage(ctx context.Context, username string) error {
	return c.Request(ctx, http.MethodPost, "/api/users/"+url.PathEscape(username)+"/reset", nil, nil, nil)
}

// RevokeSubscription rotates a user's subscription key.
func (c *Client) RevokeSubscription(ctx context.Context, username string) error {
	return c.Request(ctx, http.MethodPost, "/api/users/"+url.PathEscape(username)+"/revoke_sub", nil, nil, nil)
}

// DeleteExpiredUsers bulk-deletes users that expired at least passedTime
// seconds ago and returns the deleted usernames. The panel answers 404 when
// no user matched; that is a successful empty result, not an error.
func (c *Client) DeleteExpiredUsers(ctx context.Context, passedTime int64) ([]string, error) {
	if passedTime < 0 {
		return nil, errors.New(errors.ErrorTypeDecode, "delete_expired_users", c.username,
			fmt.Errorf("passed_time must not be negative"))
	}

	q := url.Values{}
	q.Set("passed_time", strconv.FormatInt(passedTime, 10))

	var deleted []string
	err := c.Request(ctx, http.MethodDelete, "/api/users/expired", q, nil, &deleted)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Info().Str("identity", c.username).Msg("No expired users matched the bulk delete")
			return []string{}, nil
		}
		return nil, err
	}
	if deleted == nil {
		deleted = []string{}
	}
	return deleted, nil
}

// SubscriptionInfo fetches the public subscription endpoint for a user. This
// path is served without authentication.
func (c *Client) SubscriptionInfo(ctx context.Context, username, key string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/sub/%s/%s/info", c.baseURL, url.PathEscape(username), url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.WrapTransportError("sub_info", c.username, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError("sub_info", c.username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.WrapAPIError("sub_info", c.username,
			fmt.Errorf("panel returned %s", resp.Status), resp.StatusCode, "")
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.New(errors.ErrorTypeDecode, "sub_info", c.username, err)
	}
	return info, nil
}
