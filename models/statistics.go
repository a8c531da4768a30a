// models/statistics.go
package models

// Shapes for the DfE Explore Education Statistics (EES) API
// (https://api.education.gov.uk/statistics/v1). JSON tags match the remote
// payloads; these types double as the tool-facing result shapes.

type FilterOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type DatasetFilter struct {
	ID      string         `json:"id"`
	Label   string         `json:"label"`
	Options []FilterOption `json:"options"`
}

type DatasetIndicator struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
}

type TimePeriod struct {
	Code   string `json:"code"`
	Period string `json:"period"`
	Label  string `json:"label,omitempty"`
}

type GeographicLevel struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`
}

type LocationOption struct {
	ID    string `json:"id"`
	Code  string `json:"code,omitempty"`
	Label string `json:"label,omitempty"`
}

type LocationLevel struct {
	Level   GeographicLevel  `json:"level"`
	Options []LocationOption `json:"options"`
}

// DatasetMeta is the queryable vocabulary of one data set: the identifiers a
// query may legally reference. Cached per data set for the process lifetime.
type DatasetMeta struct {
	Filters          []DatasetFilter    `json:"filters"`
	Indicators       []DatasetIndicator `json:"indicators"`
	TimePeriods      []TimePeriod       `json:"timePeriods"`
	GeographicLevels []GeographicLevel  `json:"geographicLevels"`
	Locations        []LocationLevel    `json:"locations"`
}

// StatRecord is one flattened observation from a data-set query.
type StatRecord struct {
	TimePeriod      string            `json:"time_period"`
	GeographicLevel string            `json:"geographic_level"`
	Locations       map[string]string `json:"locations,omitempty"`
	Filters         map[string]string `json:"filters,omitempty"`
	Values          map[string]string `json:"values"`
}

// Publication is a trimmed EES publication listing entry.
type Publication struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// DatasetSummary is a trimmed EES data-set listing entry.
type DatasetSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// TopicDataset is the result of topic discovery: the publication and data
// set behind a named topic, plus the identifiers available for querying it.
type TopicDataset struct {
	Topic         string             `json:"topic"`
	Publication   Publication        `json:"publication"`
	DatasetID     string             `json:"dataset_id"`
	DatasetTitle  string             `json:"dataset_title,omitempty"`
	Indicators    []DatasetIndicator `json:"indicators"`
	Filters       []DatasetFilter    `json:"filters"`
	TimePeriods   []TimePeriod       `json:"time_periods"`
}
