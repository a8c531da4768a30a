// models/establishment.go
package models

// Establishment represents one row of the GIAS bulk download.
// CSV tags EXACTLY match the edubasealldata headers (the full file has 120+
// columns; unmapped columns are ignored at decode time). A snapshot is
// immutable once loaded and is replaced wholesale on refresh.
type Establishment struct {
	URN                string `csv:"URN" json:"urn"`
	Name               string `csv:"EstablishmentName" json:"name"`
	Type               string `csv:"TypeOfEstablishment (name)" json:"type,omitempty"`
	Status             string `csv:"EstablishmentStatus (name)" json:"status,omitempty"`
	Phase              string `csv:"PhaseOfEducation (name)" json:"phase,omitempty"`
	LocalAuthority     string `csv:"LA (name)" json:"local_authority,omitempty"`
	Gender             string `csv:"Gender (name)" json:"gender,omitempty"`
	ReligiousCharacter string `csv:"ReligiousCharacter (name)" json:"religious_character,omitempty"`
	AdmissionsPolicy   string `csv:"AdmissionsPolicy (name)" json:"admissions_policy,omitempty"`
	SENProvision       string `csv:"SEN1 (name)" json:"sen_provision,omitempty"`
	SpecialClasses     string `csv:"SpecialClasses (name)" json:"special_classes,omitempty"`

	AgeLow        int      `csv:"StatutoryLowAge" json:"age_low,omitempty"`
	AgeHigh       int      `csv:"StatutoryHighAge" json:"age_high,omitempty"`
	Capacity      int      `csv:"SchoolCapacity" json:"capacity,omitempty"`
	PupilCount    int      `csv:"NumberOfPupils" json:"number_of_pupils,omitempty"`
	PercentageFSM *float64 `csv:"PercentageFSM" json:"fsm_percentage,omitempty"`

	HeadFirstName string `csv:"HeadFirstName" json:"head_first_name,omitempty"`
	HeadLastName  string `csv:"HeadLastName" json:"head_last_name,omitempty"`
	HeadJobTitle  string `csv:"HeadPreferredJobTitle" json:"head_job_title,omitempty"`

	Street   string `csv:"Street" json:"street,omitempty"`
	Locality string `csv:"Locality" json:"locality,omitempty"`
	Town     string `csv:"Town" json:"town,omitempty"`
	County   string `csv:"County (name)" json:"county,omitempty"`
	Postcode string `csv:"Postcode" json:"postcode,omitempty"`

	Website             string `csv:"SchoolWebsite" json:"website,omitempty"`
	Telephone           string `csv:"TelephoneNum" json:"telephone,omitempty"`
	OfstedLastInspected string `csv:"OfstedLastInsp" json:"ofsted_last_inspection,omitempty"`

	// Some records (closed schools, new openings) lack coordinates.
	Latitude  *float64 `csv:"Latitude" json:"latitude,omitempty"`
	Longitude *float64 `csv:"Longitude" json:"longitude,omitempty"`
}

// HasCoordinates reports whether the establishment can take part in a
// radius search.
func (e *Establishment) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// IsOpen reports whether the establishment is currently open. The bulk file
// retains closed and proposed establishments; search results only cover
// open ones.
func (e *Establishment) IsOpen() bool {
	return e.Status == "Open" || e.Status == "Open, but proposed to close"
}

// GIASDetailURL returns the public GIAS detail page for the establishment.
func (e *Establishment) GIASDetailURL() string {
	return "https://get-information-schools.service.gov.uk/Establishments/Establishment/Details/" + e.URN
}

// EstablishmentDistance pairs an establishment with its great-circle
// distance from a search origin.
type EstablishmentDistance struct {
	Establishment `json:"school"`
	DistanceKm    float64 `json:"distance_km"`
}
