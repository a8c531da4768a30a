// services/gias_service_test.go
package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthorne/uk-schools-mcp/cache"
	"github.com/jthorne/uk-schools-mcp/config"
)

const registryFixture = `URN,EstablishmentName,TypeOfEstablishment (name),EstablishmentStatus (name),PhaseOfEducation (name),LA (name),Postcode,Latitude,Longitude
100000,Bridge Primary School,Community school,Open,Primary,Milton Keynes,MK9 3BZ,52.0400,-0.7600
100001,Riverside Secondary School,Academy converter,Open,Secondary,Milton Keynes,MK9 2AB,52.0490,-0.7600
100002,Meadow Primary School,Community school,Open,Primary,Milton Keynes,MK10 1AA,52.0580,-0.7600
100003,Meadow Annex Primary School,Community school,Open,Primary,Milton Keynes,MK10 1AB,52.0580,-0.7600
100004,Old Gate School,Community school,Closed,Primary,Milton Keynes,MK9 4CD,52.0400,-0.7600
100005,Uncharted Primary School,Community school,Open,Primary,Milton Keynes,MK9 5EF,,
100006,Far Away Primary School,Community school,Open,Primary,Westminster,SW1A 1AA,51.5010,-0.1415
`

// newTestGIAS wires a GIASService against a local registry endpoint and a
// fresh cache directory, counting downloads.
func newTestGIAS(t *testing.T) (*GIASService, *int) {
	t.Helper()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(registryFixture))
	}))
	t.Cleanup(srv.Close)

	config.AppConfig.GIAS = config.GIASConfig{
		CSVURLTemplate: srv.URL + "/edubasealldata{date}.csv",
		FallbackDays:   2,
		MinRows:        1,
	}

	store, err := cache.Open(t.TempDir(), false)
	require.NoError(t, err)
	return NewGIASService(store, srv.Client()), &hits
}

func TestSearchOpenSchoolsOnly(t *testing.T) {
	svc, _ := newTestGIAS(t)

	results, err := svc.Search(context.Background(), SearchOptions{Query: "school"})
	require.NoError(t, err)
	for _, e := range results {
		assert.NotEqual(t, "Old Gate School", e.Name, "closed schools are excluded")
	}
	assert.Len(t, results, 6)
}

func TestSearchWithFilters(t *testing.T) {
	svc, _ := newTestGIAS(t)
	ctx := context.Background()

	primaries, err := svc.Search(ctx, SearchOptions{Query: "meadow", Phase: "primary"})
	require.NoError(t, err)
	assert.Len(t, primaries, 2)

	// A digit-bearing query also matches postcodes.
	byPostcode, err := svc.Search(ctx, SearchOptions{Query: "MK10"})
	require.NoError(t, err)
	assert.Len(t, byPostcode, 2)

	byLA, err := svc.Search(ctx, SearchOptions{LocalAuthority: "westminster"})
	require.NoError(t, err)
	require.Len(t, byLA, 1)
	assert.Equal(t, "Far Away Primary School", byLA[0].Name)

	limited, err := svc.Search(ctx, SearchOptions{Query: "school", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGetByURNIdempotent(t *testing.T) {
	svc, _ := newTestGIAS(t)
	ctx := context.Background()

	first, err := svc.GetByURN(ctx, "100000")
	require.NoError(t, err)
	second, err := svc.GetByURN(ctx, "100000")
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated lookups against one snapshot are identical")

	_, err = svc.GetByURN(ctx, "999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindNearSortedAndBounded(t *testing.T) {
	svc, _ := newTestGIAS(t)
	origin := [2]float64{52.0400, -0.7600} // Bridge Primary's coordinates

	results, err := svc.FindNear(context.Background(), origin[0], origin[1], 2.0,
		SearchOptions{Phase: "primary"})
	require.NoError(t, err)

	// Within 2 km of the origin: Bridge (0 km) only; the Meadow schools sit
	// ~2 km north and the no-coordinate and Westminster schools never appear.
	for _, r := range results {
		assert.LessOrEqual(t, r.DistanceKm, 2.0)
		assert.Equal(t, "Primary", r.Phase)
	}
	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		if prev.DistanceKm == cur.DistanceKm {
			assert.Less(t, prev.URN, cur.URN, "ties break by URN")
		} else {
			assert.Less(t, prev.DistanceKm, cur.DistanceKm)
		}
	}
	require.NotEmpty(t, results)
	assert.Equal(t, "100000", results[0].URN)
	assert.Zero(t, results[0].DistanceKm)
}

func TestFindNearBoundaryInclusive(t *testing.T) {
	svc, _ := newTestGIAS(t)
	origin := [2]float64{52.0400, -0.7600}

	// Radius exactly equal to the tied Meadow schools' distance must
	// include them both, in URN order.
	exact := haversineKm(origin[0], origin[1], 52.0580, -0.7600)
	results, err := svc.FindNear(context.Background(), origin[0], origin[1], exact,
		SearchOptions{Phase: "primary"})
	require.NoError(t, err)

	var urns []string
	for _, r := range results {
		urns = append(urns, r.URN)
	}
	assert.Equal(t, []string{"100000", "100002", "100003"}, urns)
}

func TestFindNearZeroResultsIsNotAnError(t *testing.T) {
	svc, _ := newTestGIAS(t)

	// Middle of the Bristol Channel: no establishment within 2 km.
	results, err := svc.FindNear(context.Background(), 51.3800, -3.6000, 2, SearchOptions{Phase: "primary"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindNearRejectsNegativeRadius(t *testing.T) {
	svc, _ := newTestGIAS(t)

	_, err := svc.FindNear(context.Background(), 52.0, -0.76, -1, SearchOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSameDayQueriesDownloadOnce(t *testing.T) {
	svc, hits := newTestGIAS(t)
	ctx := context.Background()

	_, err := svc.Search(ctx, SearchOptions{Query: "bridge"})
	require.NoError(t, err)
	_, err = svc.GetByURN(ctx, "100001")
	require.NoError(t, err)
	_, err = svc.FindNear(ctx, 52.04, -0.76, 5, SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, *hits, "second and third calls must hit the cache, not the network")
}

func TestTooFewRowsNotCached(t *testing.T) {
	svc, _ := newTestGIAS(t)
	config.AppConfig.GIAS.MinRows = 1000

	_, err := svc.Search(context.Background(), SearchOptions{Query: "bridge"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.store.Peek(registryCacheKey)
	assert.Error(t, err, "a download failing validation must not be cached")
}
