// services/ofsted_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/jthorne/uk-schools-mcp/cache"
	"github.com/jthorne/uk-schools-mcp/config"
	"github.com/jthorne/uk-schools-mcp/models"
	"github.com/jthorne/uk-schools-mcp/scraper"
)

const inspectionsCacheKey = "ofsted"

// OfstedService owns the monthly inspection-outcomes snapshot. The cached
// artifact is the processed table (CSV keyed by URN), not the source
// workbook, so a restart re-reads it without re-parsing xlsx. Refreshes at
// most once per calendar month.
type OfstedService struct {
	store  *cache.Store
	client *http.Client
	now    func() time.Time

	// resolvers are tried in order; by default the content API, then the
	// page scrape.
	resolvers []scraper.DownloadURLResolver

	mu            sync.RWMutex
	loadedVersion string
	byURN         map[string]*models.InspectionRecord
}

func NewOfstedService(store *cache.Store, client *http.Client) *OfstedService {
	cfg := config.AppConfig.Ofsted
	return &OfstedService{
		store:  store,
		client: client,
		now:    time.Now,
		resolvers: []scraper.DownloadURLResolver{
			&scraper.ContentAPIResolver{Client: client, APIURL: cfg.ContentAPIURL, LinkFragment: cfg.LinkFragment},
			&scraper.PageScrapeResolver{Client: client, PageURL: cfg.PageURL, LinkFragment: cfg.LinkFragment},
		},
	}
}

// GetRatings returns the current inspection record for the establishment.
func (s *OfstedService) GetRatings(ctx context.Context, urn string) (*models.InspectionRecord, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byURN[strings.TrimSpace(urn)]
	if !ok {
		return nil, fmt.Errorf("%w: no inspection record for URN %q", ErrNotFound, urn)
	}
	out := *rec
	return &out, nil
}

func (s *OfstedService) ensureTable(ctx context.Context) error {
	artifact, err := s.store.GetOrRefresh(inspectionsCacheKey, cache.SameMonth(s.now), s.fetch(ctx))
	if err != nil {
		return err
	}

	s.mu.RLock()
	loaded := s.loadedVersion == artifact.Version
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	data, err := artifact.Bytes()
	if err != nil {
		return fmt.Errorf("%w: failed to read cached inspections: %v", ErrSourceUnavailable, err)
	}
	var records []models.InspectionRecord
	if err := csvutil.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: cached inspection table unreadable: %v", ErrValidation, err)
	}

	byURN := make(map[string]*models.InspectionRecord, len(records))
	for i := range records {
		byURN[records[i].URN] = &records[i]
	}

	s.mu.Lock()
	s.loadedVersion = artifact.Version
	s.byURN = byURN
	s.mu.Unlock()

	log.Printf("Ofsted: loaded %d inspection records (version %s)", len(records), artifact.Version)
	return nil
}

// fetch discovers the workbook URL (API first, page scrape second),
// downloads and parses it, and produces the processed table as the cache
// artifact stamped with the current month.
func (s *OfstedService) fetch(ctx context.Context) cache.FetchFunc {
	return func() ([]byte, string, error) {
		downloadURL, err := scraper.ResolveDownloadURL(ctx, s.resolvers...)
		if err != nil {
			return nil, "", fmt.Errorf("%w: inspection data unavailable: %v", ErrSourceUnavailable, err)
		}

		workbook, err := scraper.FetchURL(ctx, s.client, downloadURL)
		if err != nil {
			return nil, "", fmt.Errorf("%w: inspection data unavailable: %v", ErrSourceUnavailable, err)
		}

		records, _, err := scraper.ParseInspectionWorkbook(workbook)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if len(records) == 0 {
			return nil, "", fmt.Errorf("%w: workbook contained no inspection records", ErrValidation)
		}

		table, err := csvutil.Marshal(records)
		if err != nil {
			return nil, "", fmt.Errorf("%w: failed to encode inspection table: %v", ErrValidation, err)
		}
		return table, s.now().UTC().Format("2006-01"), nil
	}
}
