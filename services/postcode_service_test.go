// services/postcode_service_test.go
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthorne/uk-schools-mcp/config"
)

func newTestPostcodes(t *testing.T, handler http.HandlerFunc) *PostcodeService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	config.AppConfig.Postcodes = config.PostcodesConfig{BaseURL: srv.URL}
	return NewPostcodeService(srv.Client())
}

func TestLookupValidPostcode(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/postcodes/MK9%201EN", r.URL.EscapedPath())
		fmt.Fprint(w, `{"status": 200, "result": {
			"postcode": "MK9 1EN", "latitude": 52.0406, "longitude": -0.7594,
			"admin_district": "Milton Keynes", "region": "South East", "country": "England"
		}}`)
	})

	info, err := svc.Lookup(context.Background(), " MK9 1EN ")
	require.NoError(t, err)
	assert.Equal(t, "MK9 1EN", info.Postcode)
	assert.InDelta(t, 52.0406, info.Latitude, 1e-6)
	assert.Equal(t, "Milton Keynes", info.AdminDistrict)
}

func TestLookupUnknownPostcodeIs404(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status": 404, "error": "Postcode not found"}`, http.StatusNotFound)
	})

	_, err := svc.Lookup(context.Background(), "ZZ99 9ZZ")
	assert.ErrorIs(t, err, ErrInvalidPostcode)
	assert.ErrorIs(t, err, ErrInvalidArgument, "invalid postcode is an argument error")
}

func TestLookupNullResultBody(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": 200, "result": null}`)
	})

	_, err := svc.Lookup(context.Background(), "MK9 1EN")
	assert.ErrorIs(t, err, ErrInvalidPostcode)
}

func TestLookupEmptyPostcode(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty postcode")
	})

	_, err := svc.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidPostcode)
}

func TestLookupServerFailure(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := svc.Lookup(context.Background(), "MK9 1EN")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestReverseGeocode(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/postcodes", r.URL.Path)
		assert.Equal(t, "52.0406", r.URL.Query().Get("lat"))
		assert.Equal(t, "-0.7594", r.URL.Query().Get("lon"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"status": 200, "result": [
			{"postcode": "MK9 1EN", "latitude": 52.0406, "longitude": -0.7594},
			{"postcode": "MK9 1LA", "latitude": 52.0409, "longitude": -0.7601}
		]}`)
	})

	nearby, err := svc.ReverseGeocode(context.Background(), 52.0406, -0.7594)
	require.NoError(t, err)
	require.Len(t, nearby, 2)
	assert.Equal(t, "MK9 1EN", nearby[0].Postcode)
}

func TestReverseGeocodeNothingNearby(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": 200, "result": null}`)
	})

	nearby, err := svc.ReverseGeocode(context.Background(), 49.0, -10.0)
	require.NoError(t, err)
	assert.Empty(t, nearby)
}

func TestGeocode(t *testing.T) {
	svc := newTestPostcodes(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": 200, "result": {"postcode": "CB2 1TN", "latitude": 52.2053, "longitude": 0.1218}}`)
	})

	lat, lng, err := svc.Geocode(context.Background(), "CB2 1TN")
	require.NoError(t, err)
	assert.InDelta(t, 52.2053, lat, 1e-6)
	assert.InDelta(t, 0.1218, lng, 1e-6)
}
