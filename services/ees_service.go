// services/ees_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/jthorne/uk-schools-mcp/config"
	"github.com/jthorne/uk-schools-mcp/models"
	"github.com/jthorne/uk-schools-mcp/scraper"
)

// EESService queries the DfE Explore Education Statistics API. Data-set
// metadata is cached for the process lifetime (it changes far less often
// than the data), and every identifier in a query is validated against that
// metadata before any remote call is issued.
type EESService struct {
	client  *http.Client
	baseURL string

	mu   sync.Mutex
	meta map[string]*models.DatasetMeta
}

func NewEESService(client *http.Client) *EESService {
	return &EESService{
		client:  client,
		baseURL: strings.TrimRight(config.AppConfig.EES.BaseURL, "/"),
		meta:    make(map[string]*models.DatasetMeta),
	}
}

// topicSpec maps a named topic to the publication search and data-set
// keyword needed to reach its data, collapsing the search -> publication ->
// data-set -> metadata workflow into one call.
type topicSpec struct {
	search  string
	keyword string
}

var topicRegistry = map[string]topicSpec{
	"absence":      {search: "pupil absence in schools", keyword: "absence"},
	"attendance":   {search: "pupil attendance in schools", keyword: "attendance"},
	"exclusions":   {search: "suspensions and permanent exclusions", keyword: "exclusion"},
	"performance":  {search: "key stage 4 performance", keyword: "performance"},
	"applications": {search: "school applications and offers", keyword: "applications"},
	"sen":          {search: "special educational needs", keyword: "sen"},
	"funding":      {search: "school funding statistics", keyword: "funding"},
	"workforce":    {search: "school workforce in england", keyword: "workforce"},
}

// ValidTopics lists the topic names DiscoverDataset recognizes, sorted.
func ValidTopics() []string {
	topics := make([]string, 0, len(topicRegistry))
	for t := range topicRegistry {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// GetMetadata returns the queryable vocabulary of a data set. Cached per
// data set for the process lifetime; no staleness check within a run.
func (s *EESService) GetMetadata(ctx context.Context, datasetID string) (*models.DatasetMeta, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("%w: dataset_id is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	cached, ok := s.meta[datasetID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	var meta models.DatasetMeta
	if err := s.getJSON(ctx, "/data-sets/"+url.PathEscape(datasetID)+"/meta", nil, &meta); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.meta[datasetID] = &meta
	s.mu.Unlock()
	return &meta, nil
}

// QueryOptions are the identifier selections for a data-set query. Every
// identifier must be a member of the data set's metadata; Indicators is the
// only required field.
type QueryOptions struct {
	Indicators       []string
	Filters          []string
	TimePeriods      []string // "2023" or "2023|AY"
	Locations        []string // option id, or "LEVEL|id"
	GeographicLevels []string // level codes such as NAT, REG, LA
}

// Query validates opts against the data set's metadata and, only then,
// issues the remote query and flattens the result pages into StatRecords.
func (s *EESService) Query(ctx context.Context, datasetID string, opts QueryOptions) ([]models.StatRecord, error) {
	meta, err := s.GetMetadata(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	body, err := buildQueryBody(meta, opts)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []eesResult `json:"results"`
	}
	if err := s.postJSON(ctx, "/data-sets/"+url.PathEscape(datasetID)+"/query", body, &resp); err != nil {
		return nil, err
	}

	records := make([]models.StatRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		records = append(records, r.flatten())
	}
	log.Printf("EES: query on %s returned %d records", datasetID, len(records))
	return records, nil
}

// ListPublications searches the publication catalogue.
func (s *EESService) ListPublications(ctx context.Context, search string, page, pageSize int) ([]models.Publication, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	params.Set("pageSize", fmt.Sprint(pageSize))
	if search != "" {
		params.Set("search", search)
	}

	var resp struct {
		Results []models.Publication `json:"results"`
	}
	if err := s.getJSON(ctx, "/publications", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// DiscoverDataset resolves a named topic to its publication and data set
// and returns the identifiers available for querying it.
func (s *EESService) DiscoverDataset(ctx context.Context, topic string) (*models.TopicDataset, error) {
	spec, ok := topicRegistry[strings.ToLower(strings.TrimSpace(topic))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid topics: %s)",
			ErrTopicNotRecognized, topic, strings.Join(ValidTopics(), ", "))
	}

	publications, err := s.ListPublications(ctx, spec.search, 1, 10)
	if err != nil {
		return nil, err
	}
	if len(publications) == 0 {
		return nil, fmt.Errorf("%w: no publication matched topic %q", ErrNotFound, topic)
	}
	publication := publications[0]

	var dsResp struct {
		Results []models.DatasetSummary `json:"results"`
	}
	if err := s.getJSON(ctx, "/publications/"+url.PathEscape(publication.ID)+"/data-sets", nil, &dsResp); err != nil {
		return nil, err
	}
	if len(dsResp.Results) == 0 {
		return nil, fmt.Errorf("%w: publication %q has no data sets", ErrNotFound, publication.Title)
	}

	dataset := dsResp.Results[0]
	for _, ds := range dsResp.Results {
		if strings.Contains(strings.ToLower(ds.Title), spec.keyword) {
			dataset = ds
			break
		}
	}

	meta, err := s.GetMetadata(ctx, dataset.ID)
	if err != nil {
		return nil, err
	}

	return &models.TopicDataset{
		Topic:        strings.ToLower(strings.TrimSpace(topic)),
		Publication:  publication,
		DatasetID:    dataset.ID,
		DatasetTitle: dataset.Title,
		Indicators:   meta.Indicators,
		Filters:      meta.Filters,
		TimePeriods:  meta.TimePeriods,
	}, nil
}

// --- query construction and validation ---

type eesQueryBody struct {
	Criteria   map[string]any `json:"criteria,omitempty"`
	Indicators []string       `json:"indicators"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
}

func buildQueryBody(meta *models.DatasetMeta, opts QueryOptions) (*eesQueryBody, error) {
	if len(opts.Indicators) == 0 {
		return nil, fmt.Errorf("%w: at least one indicator is required", ErrInvalidArgument)
	}

	indicatorIDs := make(map[string]bool, len(meta.Indicators))
	for _, ind := range meta.Indicators {
		indicatorIDs[ind.ID] = true
	}
	for _, id := range opts.Indicators {
		if !indicatorIDs[id] {
			return nil, fmt.Errorf("%w: unknown indicator %q", ErrInvalidArgument, id)
		}
	}

	criteria := make(map[string]any)

	if len(opts.Filters) > 0 {
		filterIDs := make(map[string]bool)
		for _, f := range meta.Filters {
			for _, opt := range f.Options {
				filterIDs[opt.ID] = true
			}
		}
		for _, id := range opts.Filters {
			if !filterIDs[id] {
				return nil, fmt.Errorf("%w: unknown filter item %q", ErrInvalidArgument, id)
			}
		}
		criteria["filters"] = map[string]any{"in": opts.Filters}
	}

	if len(opts.TimePeriods) > 0 {
		var periods []map[string]string
		for _, tp := range opts.TimePeriods {
			matched, err := matchTimePeriod(meta.TimePeriods, tp)
			if err != nil {
				return nil, err
			}
			periods = append(periods, map[string]string{"period": matched.Period, "code": matched.Code})
		}
		criteria["timePeriods"] = map[string]any{"in": periods}
	}

	if len(opts.GeographicLevels) > 0 {
		levelCodes := make(map[string]bool, len(meta.GeographicLevels))
		for _, lvl := range meta.GeographicLevels {
			levelCodes[lvl.Code] = true
		}
		for _, code := range opts.GeographicLevels {
			if !levelCodes[code] {
				return nil, fmt.Errorf("%w: unknown geographic level %q", ErrInvalidArgument, code)
			}
		}
		criteria["geographicLevels"] = map[string]any{"in": opts.GeographicLevels}
	}

	if len(opts.Locations) > 0 {
		var locations []map[string]string
		for _, loc := range opts.Locations {
			matched, err := matchLocation(meta.Locations, loc)
			if err != nil {
				return nil, err
			}
			locations = append(locations, matched)
		}
		criteria["locations"] = map[string]any{"in": locations}
	}

	body := &eesQueryBody{Indicators: opts.Indicators, Page: 1, PageSize: 500}
	if len(criteria) > 0 {
		body.Criteria = criteria
	}
	return body, nil
}

// matchTimePeriod accepts "2023" or "2023|AY" and resolves it against the
// data set's published time periods.
func matchTimePeriod(known []models.TimePeriod, raw string) (*models.TimePeriod, error) {
	period, code := raw, ""
	if i := strings.IndexByte(raw, '|'); i >= 0 {
		period, code = raw[:i], raw[i+1:]
	}
	for i := range known {
		if known[i].Period == period && (code == "" || known[i].Code == code) {
			return &known[i], nil
		}
	}
	return nil, fmt.Errorf("%w: unknown time period %q", ErrInvalidArgument, raw)
}

// matchLocation accepts a location option id or "LEVEL|id" and resolves it
// against the data set's published locations.
func matchLocation(known []models.LocationLevel, raw string) (map[string]string, error) {
	level, id := "", raw
	if i := strings.IndexByte(raw, '|'); i >= 0 {
		level, id = raw[:i], raw[i+1:]
	}
	for _, lvl := range known {
		if level != "" && lvl.Level.Code != level {
			continue
		}
		for _, opt := range lvl.Options {
			if opt.ID == id || (opt.Code != "" && opt.Code == id) {
				return map[string]string{"level": lvl.Level.Code, "id": opt.ID}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidArgument, raw)
}

// --- result flattening ---

type eesResult struct {
	TimePeriod struct {
		Code   string `json:"code"`
		Period string `json:"period"`
	} `json:"timePeriod"`
	GeographicLevel string                     `json:"geographicLevel"`
	Locations       map[string]string          `json:"locations"`
	Filters         map[string]string          `json:"filters"`
	Values          map[string]json.RawMessage `json:"values"`
}

func (r eesResult) flatten() models.StatRecord {
	tp := r.TimePeriod.Period
	if r.TimePeriod.Code != "" {
		tp += "|" + r.TimePeriod.Code
	}

	values := make(map[string]string, len(r.Values))
	for k, raw := range r.Values {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw) // numeric literal; keep its textual form
		}
		values[k] = s
	}

	return models.StatRecord{
		TimePeriod:      tp,
		GeographicLevel: r.GeographicLevel,
		Locations:       r.Locations,
		Filters:         r.Filters,
		Values:          values,
	}
}

// --- transport ---

func (s *EESService) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	body, err := scraper.FetchURL(ctx, s.client, endpoint)
	if err != nil {
		var httpErr *scraper.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("%w: statistics API: %v", ErrSourceUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: statistics API returned malformed JSON: %v", ErrValidation, err)
	}
	return nil
}

// postJSON issues the query with one retry on transport failure or 5xx,
// matching the GET path's policy.
func (s *EESService) postJSON(ctx context.Context, path string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode query body: %w", err)
	}

	endpoint := s.baseURL + path
	body, status, err := s.postOnce(ctx, endpoint, encoded)
	if err != nil || status >= 500 {
		log.Printf("EES: transient failure posting to %s (status %d, err %v); retrying once", endpoint, status, err)
		body, status, err = s.postOnce(ctx, endpoint, encoded)
	}
	if err != nil {
		return fmt.Errorf("%w: statistics API: %v", ErrSourceUnavailable, err)
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case status != http.StatusOK:
		return fmt.Errorf("%w: statistics API returned status %d", ErrSourceUnavailable, status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: statistics API returned malformed JSON: %v", ErrValidation, err)
	}
	return nil
}

func (s *EESService) postOnce(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
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
