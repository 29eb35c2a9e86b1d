// Package updatecheck polls Steam's UpToDateCheck endpoint and compares the
// platform's current build against the build our latest artifact was made
// for. Steam being slow or down degrades the answer to unknown, never to an
// error surfaced to clients.
package updatecheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
)

const defaultEndpoint = "https://api.steampowered.com/ISteamApps/UpToDateCheck/v1/"

// State classifies compatibility of the latest artifact with the platform.
type State string

const (
	StateCurrent  State = "up_to_date"
	StateOutdated State = "outdated"
	StateUnknown  State = "unknown"
)

// Result is a compatibility verdict for one product.
type Result struct {
	ProductID  string    `json:"product_id"`
	State      State     `json:"state"`
	SteamBuild string    `json:"steam_build,omitempty"`
	LocalBuild string    `json:"local_build,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

type buildSource interface {
	LoadBuildInfo(productID string) (artifact.BuildInfo, error)
}

// Checker answers compatibility queries with a short-lived cache per product.
type Checker struct {
	client    *http.Client
	endpoint  string
	appID     int
	builds    buildSource
	cacheTTL  time.Duration
	freshness time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	result Result
	until  time.Time
}

// Option configures Checker.
type Option func(*Checker)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Checker) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithEndpoint overrides the Steam API base URL (useful for tests).
func WithEndpoint(url string) Option {
	return func(c *Checker) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithCacheTTL overrides the per-product cache window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Checker) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// New constructs a Checker for one Steam app id. requestTimeout bounds each
// upstream call.
func New(appID int, requestTimeout time.Duration, builds buildSource, opts ...Option) *Checker {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	c := &Checker{
		client:    &http.Client{Timeout: requestTimeout},
		endpoint:  defaultEndpoint,
		appID:     appID,
		builds:    builds,
		cacheTTL:  5 * time.Minute,
		freshness: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns the cached verdict for a product, refreshing it from Steam
// once the cache window has passed.
func (c *Checker) Check(ctx context.Context, productID string) Result {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.cache[productID]; ok && now.Before(entry.until) {
		c.mu.Unlock()
		return entry.result
	}
	c.mu.Unlock()

	result := c.compute(ctx, productID, now)

	c.mu.Lock()
	if c.cache == nil {
		c.cache = map[string]cacheEntry{}
	}
	c.cache[productID] = cacheEntry{result: result, until: now.Add(c.cacheTTL)}
	c.mu.Unlock()
	return result
}

func (c *Checker) compute(ctx context.Context, productID string, now time.Time) Result {
	result := Result{ProductID: productID, State: StateUnknown, CheckedAt: now.UTC()}

	steamBuild, err := c.steamBuild(ctx)
	if err != nil {
		obs.LogEvent("warn", "steam update check failed", map[string]any{
			"product": productID,
			"error":   err.Error(),
		})
		return result
	}
	result.SteamBuild = steamBuild

	info, err := c.builds.LoadBuildInfo(productID)
	if err != nil {
		return result
	}
	result.LocalBuild = info.BuildNumber

	switch {
	case info.BuildNumber != "":
		if info.BuildNumber == steamBuild {
			result.State = StateCurrent
		} else {
			result.State = StateOutdated
		}
	case !info.Timestamp.IsZero():
		// No recorded build number: fall back to a freshness heuristic
		// against the artifact timestamp.
		if now.Sub(info.Timestamp) <= c.freshness {
			result.State = StateCurrent
		} else {
			result.State = StateOutdated
		}
	}
	return result
}

type steamResponse struct {
	Response struct {
		Success         bool   `json:"success"`
		UpToDate        bool   `json:"up_to_date"`
		RequiredVersion uint64 `json:"required_version"`
		Message         string `json:"message"`
	} `json:"response"`
}

// steamBuild asks Steam which build is current by submitting version 0; the
// rejection message carries the required (current) build number.
func (c *Checker) steamBuild(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s?appid=%d&version=0", c.endpoint, c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("updatecheck: steam returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	var parsed steamResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("updatecheck: bad steam response: %w", err)
	}
	if !parsed.Response.Success || parsed.Response.RequiredVersion == 0 {
		return "", fmt.Errorf("updatecheck: steam reported no current build")
	}
	return strconv.FormatUint(parsed.Response.RequiredVersion, 10), nil
}
