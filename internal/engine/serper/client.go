// Package serper is the call boundary to the Serper places API. It is
// stateless from the caller's point of view: one FetchPage call maps to one
// provider request (plus bounded retries on transient failures) and nothing
// is cached here.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/time/rate"

	"github.com/Toagan/leadgen-scraper/internal/model"
)

const (
	defaultBaseURL = "https://google.serper.dev"

	// PageSize is the number of places Serper returns per page. A shorter
	// page means the result set is exhausted.
	PageSize = 20

	maxRetries   = 3
	jitterFactor = 0.5
)

// ErrorKind separates failures the orchestrator abandons a cell for.
type ErrorKind int

const (
	// Transient covers network failures, rate limiting and provider 5xx.
	Transient ErrorKind = iota
	// Permanent covers rejected requests and unparseable payloads.
	Permanent
)

// ProviderError is a failed provider call after retries.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Kind == Permanent {
		kind = "permanent"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent provider failure.
func IsPermanent(err error) bool {
	pe, ok := err.(*ProviderError)
	return ok && pe.Kind == Permanent
}

type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	apiKey  string
	baseURL string
	region  string // fallback gl when a cell carries no region

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRate sets the request rate limit (requests per second).
func WithRate(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithBackoff overrides the retry backoff window, used by tests.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.baseBackoff = base
		c.maxBackoff = max
	}
}

func NewClient(apiKey, region string, opts ...Option) *Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}

			tlsConn := utls.UClient(conn, &utls.Config{
				ServerName: host,
			}, utls.HelloChrome_Auto)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}

			return tlsConn, nil
		},
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   15 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Limit(2), 1), // 2 req/s unless configured
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		region:      region,
		baseBackoff: 2 * time.Second,
		maxBackoff:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// placesRequest is the Serper places payload. ll biases results to the cell
// center; start is the pagination offset.
type placesRequest struct {
	Q     string `json:"q"`
	GL    string `json:"gl"`
	HL    string `json:"hl"`
	LL    string `json:"ll"`
	Start int    `json:"start,omitempty"`
}

type placesResponse struct {
	Places []struct {
		CID         string  `json:"cid"`
		PlaceID     string  `json:"placeId"`
		Title       string  `json:"title"`
		Address     string  `json:"address"`
		PhoneNumber string  `json:"phoneNumber"`
		Website     string  `json:"website"`
		Rating      float64 `json:"rating"`
		RatingCount int     `json:"ratingCount"`
		Category    string  `json:"category"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		PriceLevel  string  `json:"priceLevel"`
		Description string  `json:"description"`
		Types       []string        `json:"types"`
		Hours       json.RawMessage `json:"openingHours"`
	} `json:"places"`
	Credits int `json:"credits"`
}

// FetchPage requests one page of listings biased to the cell center. The
// offset is the provider pagination cursor; NextOffset is -1 once exhausted.
// Transient failures are retried with exponential backoff before surfacing.
func (c *Client) FetchPage(ctx context.Context, cell model.Cell, query string, offset int) (*model.ProviderPage, error) {
	gl := c.countryCode(cell.Region)
	body, err := json.Marshal(placesRequest{
		Q:     query,
		GL:    gl,
		HL:    gl,
		LL:    fmt.Sprintf("@%.6f,%.6f,%dz", cell.Lat, cell.Lng, zoomOrDefault(cell.Zoom)),
		Start: offset,
	})
	if err != nil {
		return nil, &ProviderError{Kind: Permanent, Err: fmt.Errorf("encoding request: %w", err)}
	}

	var lastErr error
	for attempt := range maxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ProviderError{Kind: Transient, Err: err}
		}

		page, err := c.doRequest(ctx, body, query, cell, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if pe, ok := err.(*ProviderError); !ok || pe.Kind == Permanent {
			return nil, err
		}
		if attempt == maxRetries-1 {
			break
		}

		backoff := c.baseBackoff * time.Duration(1<<uint(attempt))
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
		jitter := time.Duration(float64(backoff) * jitterFactor * rand.Float64())
		select {
		case <-ctx.Done():
			return nil, &ProviderError{Kind: Transient, Err: ctx.Err()}
		case <-time.After(backoff + jitter):
		}
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, body []byte, query string, cell model.Cell, offset int) (*model.ProviderPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Kind: Permanent, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ue, ok := err.(*url.Error); ok && ue.Timeout() {
			return nil, &ProviderError{Kind: Transient, Err: err}
		}
		return nil, &ProviderError{Kind: Transient, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &ProviderError{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("provider unavailable")}
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, &ProviderError{Kind: Permanent, StatusCode: resp.StatusCode, Err: fmt.Errorf("request rejected")}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Kind: Transient, Err: fmt.Errorf("reading body: %w", err)}
	}

	var pr placesResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, &ProviderError{Kind: Permanent, Err: fmt.Errorf("decoding response: %w", err)}
	}

	page := &model.ProviderPage{
		NextOffset: -1,
		Credits:    pr.Credits,
	}
	for _, p := range pr.Places {
		ref := p.CID
		if ref == "" {
			ref = p.PlaceID
		}
		if ref == "" {
			continue
		}
		page.Leads = append(page.Leads, model.Lead{
			PlaceRef:    ref,
			Name:        p.Title,
			Address:     p.Address,
			Phone:       p.PhoneNumber,
			Website:     p.Website,
			Rating:      p.Rating,
			ReviewCount: p.RatingCount,
			Category:    p.Category,
			Lat:         p.Latitude,
			Lng:         p.Longitude,
			PriceRange:  p.PriceLevel,
			Description: p.Description,
			Categories:  strings.Join(p.Types, ", "),
			OpenHours:   string(p.Hours),
			Cell:        cell.Name,
			Query:       query,
		})
	}
	if len(pr.Places) >= PageSize {
		page.NextOffset = offset + PageSize
	}

	return page, nil
}

// countryCode maps a region code to Serper's gl parameter. Serper follows
// ISO 3166, so uk becomes gb.
func (c *Client) countryCode(region string) string {
	if region == "" {
		region = c.region
	}
	if region == "uk" {
		return "gb"
	}
	return region
}

func zoomOrDefault(zoom int) int {
	if zoom <= 0 {
		return 14
	}
	return zoom
}
