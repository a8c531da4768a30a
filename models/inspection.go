// models/inspection.go
package models

import (
	"fmt"
	"time"
)

// Grade ordinals. Ofsted publishes judgements as codes 1-4; codes 8 and 9
// ("does not apply" / "no judgement") and anything out of range normalize to
// GradeNotApplicable rather than failing the record.
const (
	GradeNotApplicable = 0
	GradeOutstanding   = 1
	GradeGood          = 2
	GradeRequiresImp   = 3
	GradeInadequate    = 4
)

// GradeLabel converts a canonical grade ordinal to its published wording.
func GradeLabel(grade int) string {
	switch grade {
	case GradeOutstanding:
		return "Outstanding"
	case GradeGood:
		return "Good"
	case GradeRequiresImp:
		return "Requires Improvement"
	case GradeInadequate:
		return "Inadequate"
	case GradeNotApplicable:
		return "Not applicable"
	default:
		return fmt.Sprintf("Unknown (%d)", grade)
	}
}

// InspectionRecord is one establishment's current inspection outcome from
// the monthly management-information workbook, normalized at ingestion.
// One record per URN per monthly snapshot; superseded wholesale.
// CSV tags describe the processed table persisted in the cache.
type InspectionRecord struct {
	URN            string     `csv:"urn" json:"urn"`
	SchoolName     string     `csv:"school_name" json:"school_name,omitempty"`
	InspectionType string     `csv:"inspection_type" json:"inspection_type,omitempty"`
	InspectionDate *time.Time `csv:"inspection_date" json:"inspection_date,omitempty"`
	PublishedDate  *time.Time `csv:"published_date" json:"published_date,omitempty"`

	OverallEffectiveness    int `csv:"overall_effectiveness" json:"overall_effectiveness"`
	QualityOfEducation      int `csv:"quality_of_education" json:"quality_of_education"`
	BehaviourAndAttitudes   int `csv:"behaviour_and_attitudes" json:"behaviour_and_attitudes"`
	PersonalDevelopment     int `csv:"personal_development" json:"personal_development"`
	LeadershipAndManagement int `csv:"leadership_and_management" json:"leadership_and_management"`
	EarlyYearsProvision     int `csv:"early_years_provision" json:"early_years_provision"`
	SixthFormProvision      int `csv:"sixth_form_provision" json:"sixth_form_provision"`

	// Nullable: a first inspection has no previous outcome.
	PreviousInspectionDate       *time.Time `csv:"previous_inspection_date" json:"previous_inspection_date,omitempty"`
	PreviousOverallEffectiveness *int       `csv:"previous_overall_effectiveness" json:"previous_overall_effectiveness,omitempty"`
}

// ReportURL returns the public Ofsted reports page for the establishment.
func (r *InspectionRecord) ReportURL() string {
	return "https://reports.ofsted.gov.uk/provider/17/" + r.URN
}

// Trajectory summarises the movement between the previous and current
// overall effectiveness grades. Lower ordinals are better.
func (r *InspectionRecord) Trajectory() string {
	if r.PreviousOverallEffectiveness == nil || *r.PreviousOverallEffectiveness == GradeNotApplicable ||
		r.OverallEffectiveness == GradeNotApplicable {
		return "no previous judgement"
	}
	switch prev := *r.PreviousOverallEffectiveness; {
	case r.OverallEffectiveness < prev:
		return "improving"
	case r.OverallEffectiveness > prev:
		return "declining"
	default:
		return "stable"
	}
}
