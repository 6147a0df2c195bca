// Package release queries the release-hosting service for published release
// tags.
package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.github.com"

// maxBody bounds how much of a release payload is read; the tag list for a
// single repository is far below this.
const maxBody = 4 << 20

// Tag is a published release identifier. A valid Tag is never empty and
// never the literal null marker.
type Tag struct {
	Value string
}

func (t Tag) String() string { return t.Value }

// Release is the subset of the hosting service's release payload that the
// installer uses. The list endpoint is newest-first; index 0 is the latest
// release, pre-releases included.
type Release struct {
	TagName    string `json:"tag_name"`
	Prerelease bool   `json:"prerelease"`
}

// ErrNoRelease indicates the repository has no usable release: the list was
// empty or the newest entry carried no tag.
var ErrNoRelease = errors.New("no release found")

// QueryError is an error-shaped response from the hosting service: a payload
// carrying a human-readable message instead of a release list.
type QueryError struct {
	StatusCode int
	Message    string
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("release query failed (%d): %s", e.StatusCode, e.Message)
	}
	return "release query failed: " + e.Message
}

// Client talks to the release host's API.
type Client struct {
	base      string
	hc        *http.Client
	userAgent string
}

// NewClient returns a Client for the given API base URL; an empty base
// selects the default host.
func NewClient(base, userAgent string) *Client {
	if base == "" {
		base = defaultAPIBase
	}
	return &Client{
		base:      strings.TrimRight(base, "/"),
		hc:        &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
	}
}

// TokenFromEnv returns an optional API token for authenticated requests.
func TokenFromEnv() string {
	if tok := strings.TrimSpace(os.Getenv("AUTO_BEEPER_GITHUB_TOKEN")); tok != "" {
		return tok
	}
	return strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
}

// LatestTag fetches the full release list for repo ("owner/name") and
// returns the newest tag. The list endpoint is used instead of the "latest"
// alias because pre-releases must be eligible.
func (c *Client) LatestTag(ctx context.Context, repo string) (Tag, error) {
	url := fmt.Sprintf("%s/repos/%s/releases", c.base, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Tag{}, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if tok := TokenFromEnv(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Tag{}, &QueryError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Tag{}, fmt.Errorf("read release response: %w", err)
	}

	return extractLatestTag(body, resp.StatusCode)
}

// extractLatestTag decodes a release-list payload. An object payload is
// error-shaped (it carries a message, not a list) and always fails.
func extractLatestTag(body []byte, statusCode int) (Tag, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var payload struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(trimmed))
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.Message != "" {
			msg = payload.Message
		}
		return Tag{}, &QueryError{StatusCode: statusCode, Message: msg}
	}

	if statusCode != http.StatusOK {
		return Tag{}, &QueryError{StatusCode: statusCode, Message: strings.TrimSpace(string(trimmed))}
	}

	var releases []Release
	if err := json.Unmarshal(trimmed, &releases); err != nil {
		return Tag{}, fmt.Errorf("parse release list: %w", err)
	}
	if len(releases) == 0 {
		return Tag{}, ErrNoRelease
	}

	tag := strings.TrimSpace(releases[0].TagName)
	if tag == "" || tag == "null" {
		return Tag{}, ErrNoRelease
	}
	return Tag{Value: tag}, nil
}
