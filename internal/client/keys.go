// ABOUTME: Enrollment key management methods for the admin CLI
// ABOUTME: Create returns the cleartext secret exactly once

package client

import (
	"context"
	"net/http"
	"net/url"
)

// EnrollmentKey is one key as listed by the control API. The secret is
// never included here; it is shown only at creation.
type EnrollmentKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Revoked   bool   `json:"revoked"`
	CreatedAt string `json:"created_at"`
	RevokedAt string `json:"revoked_at,omitempty"`
}

// CreatedKey is the response to key creation. Secret is the cleartext
// enrollment secret; the server stores only a hash, so save it now.
type CreatedKey struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// CreateEnrollmentKey mints a new enrollment key with a server-generated
// secret.
func (c *Client) CreateEnrollmentKey(ctx context.Context, name string) (*CreatedKey, error) {
	req := struct {
		Name string `json:"name"`
	}{Name: name}

	var created CreatedKey
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/enrollment-keys", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListEnrollmentKeys returns every enrollment key, revoked ones included.
func (c *Client) ListEnrollmentKeys(ctx context.Context) ([]EnrollmentKey, error) {
	var keys []EnrollmentKey
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/enrollment-keys", nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// RevokeEnrollmentKey revokes a key by id. Agents already enrolled with
// it keep their tokens; only future enrollments are blocked.
func (c *Client) RevokeEnrollmentKey(ctx context.Context, id string) error {
	path := "/api/v1/enrollment-keys/" + url.PathEscape(id)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
