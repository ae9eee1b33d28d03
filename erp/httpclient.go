package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/atlasdevji/prowhey-middleware/entity"
)

// HTTPFetcher is a generic REST-backed Fetcher. It knows nothing about the
// ERP's actual wire format beyond "JSON over HTTP, one entity or a list
// keyed by entity type" — the concrete request/response shapes live outside
// the core, per the "ERP wire format is non-goal" boundary.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewHTTPFetcher builds an HTTPFetcher from cfg.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// FetchOne fetches the raw record(s) for one entity id.
func (f *HTTPFetcher) FetchOne(ctx context.Context, t entity.Type, entityID string) ([]RawRecord, error) {
	url := fmt.Sprintf("%s/api/resource/%s/%s", f.baseURL, t, entityID)
	var records []RawRecord
	err := f.doWithRetry(ctx, url, &records)
	return records, err
}

// FetchPublished fetches every currently-published record for t, used by
// the weekly full refresh to both reconcile changed entities and discover
// which previously-cached ids have been unpublished.
func (f *HTTPFetcher) FetchPublished(ctx context.Context, t entity.Type) ([]RawRecord, error) {
	url := fmt.Sprintf("%s/api/resource/%s", f.baseURL, t)
	var records []RawRecord
	err := f.doWithRetry(ctx, url, &records)
	return records, err
}

// FetchQuery fetches the raw records matching rawQuery (the caller's
// untouched query string, e.g. `filters=[["name","=","WEB-ITM-0002"]]`),
// used by the `/api/resource/<Doctype>?...` list/query read-through path.
func (f *HTTPFetcher) FetchQuery(ctx context.Context, t entity.Type, rawQuery string) ([]RawRecord, error) {
	url := fmt.Sprintf("%s/api/resource/%s", f.baseURL, t)
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	var records []RawRecord
	err := f.doWithRetry(ctx, url, &records)
	return records, err
}

// FetchImage retrieves one image's raw bytes and content type, implementing
// erp.ImageFetcher so the transformer can fall back to the ERP itself when
// an image isn't already in the image cache.
func (f *HTTPFetcher) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", &httpStatusError{StatusCode: resp.StatusCode, URL: url}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// Ping verifies the ERP is reachable, used by the health endpoint's tighter
// 5s budget. It issues a plain GET against the ERP base URL and treats any
// HTTP response, whatever its status, as reachable; only a transport error
// fails the probe.
func (f *HTTPFetcher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("erp: ping failed: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// doWithRetry performs up to f.maxRetries retries (two by default) with
// exponential backoff on connection errors, 5xx responses and undecodable
// bodies; a 4xx response is treated as an authentication/validation failure
// and is never retried, matching the retry policy other outbound calls in
// this codebase follow.
func (f *HTTPFetcher) doWithRetry(ctx context.Context, url string, out any) error {
	attempts := f.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		err := f.doOnce(ctx, url, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var statusErr *httpStatusError
		if isHTTPStatusError(err, &statusErr) && statusErr.StatusCode < 500 {
			return err
		}

		if attempt < attempts-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 200 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("erp: request to %s failed after %d attempts: %w", url, attempts, lastErr)
}

func (f *HTTPFetcher) doOnce(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpStatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type httpStatusError struct {
	StatusCode int
	URL        string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("erp: %s returned status %d", e.URL, e.StatusCode)
}

func isHTTPStatusError(err error, target **httpStatusError) bool {
	statusErr, ok := err.(*httpStatusError)
	if !ok {
		return false
	}
	*target = statusErr
	return true
}
