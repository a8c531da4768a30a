// scraper/fetch.go
package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
)

// HTTPError is a non-200 response. Callers distinguish semantic failures
// (404: file not published yet, unknown postcode) from transport trouble
// by inspecting the status code.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

// FetchURL performs a GET with one retry on transport failure or a 5xx
// response. 4xx responses are semantic, never retried, and surface as
// *HTTPError. The client's timeout bounds each attempt.
func FetchURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	body, status, err := fetchOnce(ctx, client, url)
	if err != nil || status >= 500 {
		log.Printf("Scraper: transient failure fetching %s (status %d, err %v); retrying once", url, status, err)
		body, status, err = fetchOnce(ctx, client, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if status != http.StatusOK {
		return nil, &HTTPError{URL: url, StatusCode: status}
	}
	return body, nil
}

func fetchOnce(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
