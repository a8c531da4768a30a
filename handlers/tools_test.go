// handlers/tools_test.go
package handlers

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jthorne/uk-schools-mcp/models"
	"github.com/jthorne/uk-schools-mcp/services"
)

func TestDescribeErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid postcode", fmt.Errorf("%w: %q", services.ErrInvalidPostcode, "ZZ1"), "invalid_postcode"},
		{"topic", fmt.Errorf("%w: %q", services.ErrTopicNotRecognized, "hovercrafts"), "topic_not_recognized"},
		{"argument", fmt.Errorf("%w: unknown indicator", services.ErrInvalidArgument), "invalid_argument"},
		{"not found", fmt.Errorf("%w: URN 1", services.ErrNotFound), "not_found"},
		{"validation", fmt.Errorf("%w: header", services.ErrValidation), "validation_failure"},
		{"unavailable", fmt.Errorf("%w: timeout", services.ErrSourceUnavailable), "source_unavailable"},
		{"unexpected", fmt.Errorf("disk full"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := describeError(tc.err)
			assert.Equal(t, tc.want+": "+tc.err.Error(), got)
		})
	}
}

func TestRatingView(t *testing.T) {
	inspected := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	prev := models.GradeRequiresImp
	rec := &models.InspectionRecord{
		URN:                          "100000",
		SchoolName:                   "Bridge Primary School",
		InspectionType:               "Graded inspection",
		InspectionDate:               &inspected,
		OverallEffectiveness:         models.GradeGood,
		QualityOfEducation:           models.GradeGood,
		LeadershipAndManagement:      models.GradeOutstanding,
		PreviousOverallEffectiveness: &prev,
	}

	view := ratingView(rec)

	overall := view["overall_effectiveness"].(map[string]any)
	assert.Equal(t, models.GradeGood, overall["grade"])
	assert.Equal(t, "Good", overall["label"])

	judgements := view["judgements"].(map[string]string)
	assert.Equal(t, "Outstanding", judgements["leadership_and_management"])
	assert.Equal(t, "Not applicable", judgements["sixth_form_provision"])

	assert.Equal(t, "2024-05-13", view["inspection_date"])
	assert.Equal(t, "improving", view["trajectory"])
	assert.Equal(t, "https://reports.ofsted.gov.uk/provider/17/100000", view["report_url"])

	previous := view["previous"].(map[string]any)
	assert.Equal(t, "Requires Improvement", previous["label"])
	assert.NotContains(t, previous, "inspection_date")
}

func TestRatingViewFirstInspection(t *testing.T) {
	rec := &models.InspectionRecord{URN: "100001", OverallEffectiveness: models.GradeGood}

	view := ratingView(rec)
	assert.Equal(t, "no previous judgement", view["trajectory"])
	assert.NotContains(t, view, "previous")
	assert.NotContains(t, view, "inspection_date")
}
