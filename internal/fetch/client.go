// ABOUTME: HTTP client for the remote nearby-records endpoint
// ABOUTME: Maps the wire DTOs to store.Record and retries transient failures with exponential backoff

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/store"
)

// DefaultRadiusMiles is the search radius used when the caller passes zero.
const DefaultRadiusMiles = 1.0

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 512

// ErrInvalidResponse is returned when the server answers 2xx with a body that
// cannot be decoded into records.
var ErrInvalidResponse = errors.New("invalid response")

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// AdDTO is one record as served by GET /ads/nearby.
type AdDTO struct {
	Token        string   `json:"token" yaml:"token"`
	StoreID      string   `json:"storeId" yaml:"store_id"`
	StoreName    string   `json:"storeName" yaml:"store_name"`
	Title        string   `json:"title" yaml:"title"`
	Description  *string  `json:"description,omitempty" yaml:"description,omitempty"`
	ImageURL     *string  `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
	VideoURL     *string  `json:"videoUrl,omitempty" yaml:"video_url,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	RadiusMeters *float64 `json:"radiusMeters,omitempty" yaml:"radius_meters,omitempty"`
}

// NearbyResponse is the body of GET /ads/nearby.
type NearbyResponse struct {
	Ads  []AdDTO `json:"ads"`
	Hash *string `json:"hash,omitempty"`
}

// Result is a decoded fetch: the ordered records plus the optional server hash.
type Result struct {
	Records []store.Record
	Hash    string // empty when the server sent none
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds a single HTTP attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts. Values below 2 disable retry.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// HTTPClient overrides the transport. Defaults to a new http.Client.
	HTTPClient *http.Client
	// Now stamps FetchedAt on decoded records. Defaults to time.Now.
	Now func() time.Time
}

// Client fetches nearby records from the remote server.
type Client struct {
	endpoint string
	opts     Options
	http     *http.Client
	now      func() time.Time
	logger   *slog.Logger
}

// NewClient creates a fetch client for the server at opts.BaseURL.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	endpoint, err := url.JoinPath(opts.BaseURL, "ads", "nearby")
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		endpoint: endpoint,
		opts:     opts,
		http:     hc,
		now:      now,
		logger:   logger.With("component", "fetch"),
	}, nil
}

// FetchNearby returns the records around loc within radiusMiles.
// Transient failures are retried when MaxAttempts > 1; client errors and
// undecodable bodies fail immediately.
func (c *Client) FetchNearby(ctx context.Context, loc geo.Location, radiusMiles float64) (*Result, error) {
	if radiusMiles <= 0 {
		radiusMiles = DefaultRadiusMiles
	}

	if c.opts.MaxAttempts < 2 {
		res, err := c.fetchOnce(ctx, loc, radiusMiles)
		if err != nil {
			return nil, unwrapPermanent(err)
		}
		return res, nil
	}

	b := backoff.NewExponentialBackOff()
	if c.opts.InitialInterval > 0 {
		b.InitialInterval = c.opts.InitialInterval
	}
	if c.opts.MaxInterval > 0 {
		b.MaxInterval = c.opts.MaxInterval
	}

	return backoff.Retry(ctx,
		func() (*Result, error) { return c.fetchOnce(ctx, loc, radiusMiles) },
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("fetch failed, retrying",
				"location", loc.String(),
				"error", err,
				"retry_in", next)
		}),
	)
}

func (c *Client) fetchOnce(ctx context.Context, loc geo.Location, radiusMiles float64) (*Result, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radiusMiles, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting nearby records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		if httpErr.Temporary() {
			return nil, httpErr
		}
		return nil, backoff.Permanent(httpErr)
	}

	var body NearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	fetchedAt := c.now()
	recs := make([]store.Record, 0, len(body.Ads))
	for i, dto := range body.Ads {
		if dto.Token == "" {
			return nil, backoff.Permanent(fmt.Errorf("%w: ad %d has no token", ErrInvalidResponse, i))
		}
		recs = append(recs, dto.ToRecord(fetchedAt))
	}

	res := &Result{Records: recs}
	if body.Hash != nil {
		res.Hash = *body.Hash
	}

	c.logger.Debug("fetched nearby records",
		"location", loc.String(),
		"count", len(recs),
		"server_hash", res.Hash != "")
	return res, nil
}

// ToRecord converts the wire form into a cache row stamped with fetchedAt.
func (d AdDTO) ToRecord(fetchedAt time.Time) store.Record {
	return store.Record{
		Token:       d.Token,
		OwnerID:     d.StoreID,
		OwnerName:   d.StoreName,
		Title:       d.Title,
		Description: d.Description,
		ImageRef:    d.ImageURL,
		VideoRef:    d.VideoURL,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		FetchedAt:   fetchedAt,
	}
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
