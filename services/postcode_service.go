// services/postcode_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jthorne/uk-schools-mcp/config"
	"github.com/jthorne/uk-schools-mcp/scraper"
)

// PostcodeService geocodes UK postcodes via postcodes.io. No authentication,
// no caching: lookups are cheap and postcode coordinates do not change.
type PostcodeService struct {
	client  *http.Client
	baseURL string
}

func NewPostcodeService(client *http.Client) *PostcodeService {
	return &PostcodeService{
		client:  client,
		baseURL: strings.TrimRight(config.AppConfig.Postcodes.BaseURL, "/"),
	}
}

// PostcodeInfo is the location detail behind a geocoded postcode.
type PostcodeInfo struct {
	Postcode      string  `json:"postcode"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	AdminDistrict string  `json:"admin_district,omitempty"`
	Region        string  `json:"region,omitempty"`
	Country       string  `json:"country,omitempty"`
}

// Lookup resolves a postcode to its full location record. A malformed or
// unrecognized postcode yields ErrInvalidPostcode, distinct from a
// transport failure.
func (s *PostcodeService) Lookup(ctx context.Context, postcode string) (*PostcodeInfo, error) {
	pc := strings.TrimSpace(postcode)
	if pc == "" {
		return nil, fmt.Errorf("%w: empty postcode", ErrInvalidPostcode)
	}

	body, err := scraper.FetchURL(ctx, s.client, s.baseURL+"/postcodes/"+url.PathEscape(pc))
	if err != nil {
		var httpErr *scraper.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPostcode, postcode)
		}
		return nil, fmt.Errorf("%w: geocoding: %v", ErrSourceUnavailable, err)
	}

	var resp struct {
		Status int           `json:"status"`
		Result *PostcodeInfo `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: geocoding returned malformed JSON: %v", ErrSourceUnavailable, err)
	}
	if resp.Status != http.StatusOK || resp.Result == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPostcode, postcode)
	}
	return resp.Result, nil
}

// Geocode resolves a postcode to (latitude, longitude).
func (s *PostcodeService) Geocode(ctx context.Context, postcode string) (float64, float64, error) {
	info, err := s.Lookup(ctx, postcode)
	if err != nil {
		return 0, 0, err
	}
	return info.Latitude, info.Longitude, nil
}

// ReverseGeocode returns up to five postcodes nearest a coordinate. A
// coordinate with no postcodes nearby (offshore, outside the UK) yields an
// empty slice, not an error.
func (s *PostcodeService) ReverseGeocode(ctx context.Context, lat, lng float64) ([]PostcodeInfo, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("limit", "5")

	body, err := scraper.FetchURL(ctx, s.client, s.baseURL+"/postcodes?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: reverse geocoding: %v", ErrSourceUnavailable, err)
	}

	var resp struct {
		Status int            `json:"status"`
		Result []PostcodeInfo `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: reverse geocoding returned malformed JSON: %v", ErrSourceUnavailable, err)
	}
	if resp.Status != http.StatusOK || resp.Result == nil {
		return []PostcodeInfo{}, nil
	}
	return resp.Result, nil
}
