// services/gias_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/jthorne/uk-schools-mcp/cache"
	"github.com/jthorne/uk-schools-mcp/config"
	"github.com/jthorne/uk-schools-mcp/models"
	"github.com/jthorne/uk-schools-mcp/scraper"
)

const registryCacheKey = "gias"

// GIASService owns the establishment registry: a daily-refreshed bulk CSV
// loaded into a read-only in-memory snapshot. The snapshot is replaced
// wholesale when the cached version changes; readers share it without
// copying.
type GIASService struct {
	store  *cache.Store
	client *http.Client
	now    func() time.Time

	mu            sync.RWMutex
	loadedVersion string
	table         []models.Establishment
	byURN         map[string]*models.Establishment
}

func NewGIASService(store *cache.Store, client *http.Client) *GIASService {
	return &GIASService{store: store, client: client, now: time.Now}
}

// SearchOptions narrows a registry search. All matching is case-insensitive
// substring except Postcode, which is a prefix match. Zero-valued fields
// are ignored.
type SearchOptions struct {
	Query          string
	Postcode       string
	LocalAuthority string
	Phase          string
	Type           string
	Limit          int
}

// Search returns open establishments matching the options.
func (s *GIASService) Search(ctx context.Context, opts SearchOptions) ([]models.Establishment, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.Establishment, 0, limit)
	for i := range s.table {
		e := &s.table[i]
		if !e.IsOpen() || !matchesSearch(e, opts) {
			continue
		}
		results = append(results, *e)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// GetByURN returns the establishment with the given identifier. Against the
// same snapshot, repeated calls return identical results.
func (s *GIASService) GetByURN(ctx context.Context, urn string) (*models.Establishment, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byURN[strings.TrimSpace(urn)]
	if !ok {
		return nil, fmt.Errorf("%w: no establishment with URN %q", ErrNotFound, urn)
	}
	out := *e
	return &out, nil
}

// FindNear returns open establishments within radiusKm of the origin
// (inclusive at the boundary), sorted ascending by distance with URN as the
// tie-break. Establishments without coordinates are skipped.
func (s *GIASService) FindNear(ctx context.Context, lat, lng, radiusKm float64, opts SearchOptions) ([]models.EstablishmentDistance, error) {
	if radiusKm < 0 {
		return nil, fmt.Errorf("%w: radius_km must be non-negative, got %v", ErrInvalidArgument, radiusKm)
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.EstablishmentDistance
	for i := range s.table {
		e := &s.table[i]
		if !e.IsOpen() || !e.HasCoordinates() || !matchesSearch(e, opts) {
			continue
		}
		d := haversineKm(lat, lng, *e.Latitude, *e.Longitude)
		if d > radiusKm {
			continue
		}
		results = append(results, models.EstablishmentDistance{Establishment: *e, DistanceKm: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].URN < results[j].URN
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ensureTable makes sure a fresh snapshot is loaded, refreshing the cached
// artifact at most once per day and re-parsing only when its version
// changes.
func (s *GIASService) ensureTable(ctx context.Context) error {
	artifact, err := s.store.GetOrRefresh(registryCacheKey, cache.SameDay(s.now), s.fetch(ctx))
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
		return fmt.Errorf("%w: failed to read cached registry: %v", ErrSourceUnavailable, err)
	}
	establishments, _, err := scraper.ParseEstablishments(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: cached registry unreadable: %v", ErrValidation, err)
	}

	byURN := make(map[string]*models.Establishment, len(establishments))
	for i := range establishments {
		byURN[establishments[i].URN] = &establishments[i]
	}

	s.mu.Lock()
	s.loadedVersion = artifact.Version
	s.table = establishments
	s.byURN = byURN
	s.mu.Unlock()

	log.Printf("GIAS: loaded %d establishments (version %s)", len(establishments), artifact.Version)
	return nil
}

// fetch downloads and validates a new registry snapshot. Validation happens
// here so a bad download is never cached.
func (s *GIASService) fetch(ctx context.Context) cache.FetchFunc {
	return func() ([]byte, string, error) {
		cfg := config.AppConfig.GIAS
		data, stamp, err := scraper.DownloadRegistryCSV(ctx, s.client, cfg.CSVURLTemplate, cfg.FallbackDays, s.now)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}

		establishments, _, err := scraper.ParseEstablishments(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if len(establishments) < cfg.MinRows {
			return nil, "", fmt.Errorf("%w: registry has %d rows, expected at least %d",
				ErrValidation, len(establishments), cfg.MinRows)
		}
		return data, stamp, nil
	}
}

func matchesSearch(e *models.Establishment, opts SearchOptions) bool {
	if opts.Query != "" {
		q := strings.ToUpper(strings.TrimSpace(opts.Query))
		nameHit := strings.Contains(strings.ToUpper(e.Name), q)
		// Queries carrying digits may be postcodes; match either field,
		// mirroring how people paste "MK9" or a school name alike.
		postcodeHit := containsDigit(q) && strings.Contains(strings.ToUpper(e.Postcode), q)
		if !nameHit && !postcodeHit {
			return false
		}
	}
	if opts.Postcode != "" &&
		!strings.HasPrefix(strings.ToUpper(e.Postcode), strings.ToUpper(strings.TrimSpace(opts.Postcode))) {
		return false
	}
	if opts.LocalAuthority != "" &&
		!strings.Contains(strings.ToUpper(e.LocalAuthority), strings.ToUpper(opts.LocalAuthority)) {
		return false
	}
	if opts.Phase != "" && !strings.Contains(strings.ToUpper(e.Phase), strings.ToUpper(opts.Phase)) {
		return false
	}
	if opts.Type != "" && !strings.Contains(strings.ToUpper(e.Type), strings.ToUpper(opts.Type)) {
		return false
	}
	return true
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
