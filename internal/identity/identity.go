// Package identity resolves user ids against the external user directory.
// Authentication itself lives upstream; this package only attaches public
// profile info (username, avatar) to datasets for display.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mensah/datashelf/internal/fault"
)

// User is the public projection of a directory user.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Resolver looks up users by id. Implementations may fail with
// fault.ErrNotFound for deleted or unknown users; callers must tolerate a
// missing user without failing list rendering.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (User, error)
}

// HTTPResolver resolves users against a directory service over HTTP
// (GET {base}/users/{id}).
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPResolver creates a resolver targeting the given directory base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, userID string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/users/"+userID, nil)
	if err != nil {
		return User{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return User{}, fault.Dependency("resolving user", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return User{}, fault.NotFound("user %s", userID)
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fault.Dependency("resolving user",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("decoding user response: %w", err)
	}
	if u.ID == "" {
		u.ID = userID
	}
	return u, nil
}
