// services/ofsted_service_test.go
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jthorne/uk-schools-mcp/cache"
	"github.com/jthorne/uk-schools-mcp/config"
	"github.com/jthorne/uk-schools-mcp/models"
)

func inspectionWorkbook(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	header := []any{
		"URN", "School name", "Inspection type", "Inspection start date", "Publication date",
		"Overall effectiveness", "Quality of education", "Behaviour and attitudes",
		"Personal development", "Effectiveness of leadership and management",
		"Early years provision (where applicable)", "Sixth form provision (where applicable)",
		"Previous inspection start date", "Previous overall effectiveness",
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{
		"100000", "Bridge Primary School", "Graded inspection", "13/05/2024", "02/07/2024",
		"1", "1", "1", "2", "1", "9", "", "10/03/2019", "2"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{
		"100001", "Riverside Secondary School", "Graded inspection", "20/01/2025", "28/02/2025",
		"3", "3", "2", "2", "3", "", "2", "", ""}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type ofstedFixture struct {
	svc          *OfstedService
	apiHits      *int
	workbookHits *int
	apiBroken    *bool
}

func newTestOfsted(t *testing.T) ofstedFixture {
	t.Helper()

	workbook := inspectionWorkbook(t)
	apiHits, workbookHits := 0, 0
	apiBroken := false

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/api/content", func(w http.ResponseWriter, r *http.Request) {
		apiHits++
		if apiBroken {
			http.Error(w, "content API down", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"details":{"attachments":[{"url":"%s/media/state-funded_schools.xlsx","title":"MI"}]}}`, srv.URL)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s/media/state-funded_schools.xlsx">Download</a>`, srv.URL)
	})
	mux.HandleFunc("/media/state-funded_schools.xlsx", func(w http.ResponseWriter, r *http.Request) {
		workbookHits++
		w.Write(workbook)
	})

	config.AppConfig.Ofsted = config.OfstedConfig{
		ContentAPIURL: srv.URL + "/api/content",
		PageURL:       srv.URL + "/page",
		LinkFragment:  "state-funded_schools",
	}

	store, err := cache.Open(t.TempDir(), false)
	require.NoError(t, err)
	return ofstedFixture{
		svc:          NewOfstedService(store, srv.Client()),
		apiHits:      &apiHits,
		workbookHits: &workbookHits,
		apiBroken:    &apiBroken,
	}
}

func TestGetRatingsNormalized(t *testing.T) {
	fx := newTestOfsted(t)

	rec, err := fx.svc.GetRatings(context.Background(), "100000")
	require.NoError(t, err)
	assert.Equal(t, models.GradeOutstanding, rec.OverallEffectiveness)
	assert.Equal(t, models.GradeGood, rec.PersonalDevelopment)
	assert.Equal(t, models.GradeNotApplicable, rec.EarlyYearsProvision)
	require.NotNil(t, rec.InspectionDate)
	assert.Equal(t, "2024-05-13", rec.InspectionDate.Format("2006-01-02"))
	require.NotNil(t, rec.PreviousOverallEffectiveness)
	assert.Equal(t, models.GradeGood, *rec.PreviousOverallEffectiveness)
	assert.Equal(t, "improving", rec.Trajectory())
	assert.Equal(t, "https://reports.ofsted.gov.uk/provider/17/100000", rec.ReportURL())
}

func TestGetRatingsFirstInspectionHasNoPrevious(t *testing.T) {
	fx := newTestOfsted(t)

	rec, err := fx.svc.GetRatings(context.Background(), "100001")
	require.NoError(t, err)
	assert.Nil(t, rec.PreviousOverallEffectiveness)
	assert.Nil(t, rec.PreviousInspectionDate)
	assert.Equal(t, "no previous judgement", rec.Trajectory())
}

func TestGetRatingsNotFound(t *testing.T) {
	fx := newTestOfsted(t)

	_, err := fx.svc.GetRatings(context.Background(), "999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSameMonthDownloadsOnce(t *testing.T) {
	fx := newTestOfsted(t)
	ctx := context.Background()

	_, err := fx.svc.GetRatings(ctx, "100000")
	require.NoError(t, err)
	_, err = fx.svc.GetRatings(ctx, "100001")
	require.NoError(t, err)

	assert.Equal(t, 1, *fx.workbookHits, "within one month the workbook is fetched once")
}

func TestFallsBackToPageScrapeWhenAPIDown(t *testing.T) {
	fx := newTestOfsted(t)
	*fx.apiBroken = true

	rec, err := fx.svc.GetRatings(context.Background(), "100000")
	require.NoError(t, err)
	assert.Equal(t, "Bridge Primary School", rec.SchoolName)
	assert.Equal(t, 1, *fx.workbookHits)
}
