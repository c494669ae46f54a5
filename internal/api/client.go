package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pefman/medal-dashboard/internal/envelope"
	"github.com/pefman/medal-dashboard/internal/ranking"
	"github.com/pefman/medal-dashboard/internal/record"
)

var httpClient = &http.Client{Timeout: 8 * time.Second}

// maxBody bounds how much of a response is read.
const maxBody = 8 << 20

// Config holds API configuration
type Config struct {
	// BaseURL is the versioned API root serving /statistics.
	BaseURL string
	// HealthURL is the root serving /ping.
	HealthURL string
}

type Client struct {
	config Config
	hosts  map[string]bool
	http   *http.Client
}

// NewClient returns a client for the data API. Save-data URLs may only point
// at the hosts of baseURL and healthURL plus dataHosts (host or host:port).
func NewClient(baseURL, healthURL string, dataHosts ...string) *Client {
	c := &Client{
		config: Config{BaseURL: baseURL, HealthURL: healthURL},
		hosts:  make(map[string]bool),
	}
	for _, raw := range []string{baseURL, healthURL} {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			c.hosts[strings.ToLower(u.Host)] = true
		}
	}
	for _, h := range dataHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			c.hosts[h] = true
		}
	}
	hc := *httpClient
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return c.checkHost(req.URL)
	}
	c.http = &hc
	return c
}

// checkHost refuses hosts outside the configured data API.
func (c *Client) checkHost(u *url.URL) error {
	host := strings.ToLower(u.Host)
	if c.hosts[host] || c.hosts[strings.ToLower(u.Hostname())] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host)
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if errors.Is(err, ErrHostNotAllowed) {
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, ue.Err
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return resp, nil
}

func (c *Client) apiGet(ctx context.Context, path string, out interface{}) error {
	base := strings.TrimRight(c.config.BaseURL, "/")
	resp, err := c.get(ctx, base+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// FetchRankings reads the current statistics snapshot.
func (c *Client) FetchRankings(ctx context.Context) (*ranking.Snapshot, error) {
	var s ranking.Snapshot
	if err := c.apiGet(ctx, "/statistics", &s); err != nil {
		return nil, err
	}
	s.FetchedAt = time.Now()
	return &s, nil
}

// FetchAchievementRates reads the achievement acquisition rates.
func (c *Client) FetchAchievementRates(ctx context.Context) (*ranking.AchievementRates, error) {
	var a ranking.AchievementRates
	if err := c.apiGet(ctx, "/achievements/rates", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FetchPersonalRecord reads a signed save-data URL and unwraps the record.
// Input is validated before any request is made, and only the data API
// hosts are ever contacted, redirects included.
func (c *Client) FetchPersonalRecord(ctx context.Context, rawURL string) (record.Record, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return record.Record{}, err
	}
	u, _ := url.Parse(target)
	if err := c.checkHost(u); err != nil {
		return record.Record{}, err
	}
	resp, err := c.get(ctx, target)
	if err != nil {
		return record.Record{}, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return record.Record{}, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return record.Record{}, ErrAuth
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return record.Record{}, &HTTPError{Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return envelope.Decode(body)
}

// Ping reports whether the data server answers its health check.
func (c *Client) Ping(ctx context.Context) bool {
	base := strings.TrimRight(c.config.HealthURL, "/")
	resp, err := c.get(ctx, base+"/ping")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// ValidateURL trims raw and checks it is an absolute http(s) URL.
func ValidateURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrMissingURL
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return s, nil
}
