// scraper/gias.go
package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/jthorne/uk-schools-mcp/models"
)

// RequiredRegistryColumns must all be present in the bulk CSV header for a
// download to be accepted. Protects against truncated or reshaped files
// being cached.
var RequiredRegistryColumns = []string{
	"URN",
	"EstablishmentName",
	"EstablishmentStatus (name)",
	"PhaseOfEducation (name)",
	"LA (name)",
	"Postcode",
}

// DownloadRegistryCSV fetches the daily establishment bulk CSV. The file for
// a given day is published with that day's date in the URL; if today's is not
// up yet (404) the previous days are tried, up to fallbackDays back. Returns
// the raw bytes and the YYYYMMDD stamp of the file actually fetched.
func DownloadRegistryCSV(ctx context.Context, client *http.Client, urlTemplate string, fallbackDays int, now func() time.Time) ([]byte, string, error) {
	var lastErr error
	for daysBack := 0; daysBack <= fallbackDays; daysBack++ {
		stamp := now().UTC().AddDate(0, 0, -daysBack).Format("20060102")
		url := strings.ReplaceAll(urlTemplate, "{date}", stamp)
		log.Printf("Scraper: trying registry download %s", url)

		data, err := FetchURL(ctx, client, url)
		if err != nil {
			lastErr = err
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				continue // not yet published for this date
			}
			continue
		}
		log.Printf("Scraper: downloaded registry for %s (%d bytes)", stamp, len(data))
		return data, stamp, nil
	}
	return nil, "", fmt.Errorf("no recent registry available (tried %d days back): %w", fallbackDays, lastErr)
}

// ParseEstablishments decodes the bulk CSV into fixed Establishment records.
// The header must contain every required column. Rows that fail to decode or
// lack a URN or name are dropped and counted, never emitted.
func ParseEstablishments(r io.Reader) ([]models.Establishment, int, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read registry CSV header: %w", err)
	}

	header := dec.Header()
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	for _, col := range RequiredRegistryColumns {
		if !present[col] {
			return nil, 0, fmt.Errorf("registry CSV missing required column %q", col)
		}
	}

	var (
		establishments []models.Establishment
		dropped        int
	)
	for {
		var e models.Establishment
		if err := dec.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			dropped++
			continue
		}
		if e.URN == "" || e.Name == "" {
			dropped++
			continue
		}
		establishments = append(establishments, e)
	}
	if dropped > 0 {
		log.Printf("Scraper: dropped %d malformed registry rows", dropped)
	}
	return establishments, dropped, nil
}
