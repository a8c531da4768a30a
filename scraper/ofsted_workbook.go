// scraper/ofsted_workbook.go
package scraper

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jthorne/uk-schools-mcp/models"
)

// Judgement columns in the management-information workbook, matched after
// normalization (lowercased, " (where applicable)" suffixes stripped).
const (
	colURN                = "urn"
	colSchoolName         = "school name"
	colInspectionType     = "inspection type"
	colInspectionDate     = "inspection start date"
	colPublicationDate    = "publication date"
	colOverall            = "overall effectiveness"
	colQualityOfEducation = "quality of education"
	colBehaviour          = "behaviour and attitudes"
	colPersonalDev        = "personal development"
	colLeadership         = "effectiveness of leadership and management"
	colLeadershipShort    = "leadership and management"
	colEarlyYears         = "early years provision"
	colSixthForm          = "sixth form provision"
	colPrevInspectionDate = "previous inspection start date"
	colPrevOverall        = "previous overall effectiveness"
	colPrevOverallLong    = "previous full inspection overall effectiveness"
)

// ParseInspectionWorkbook reads the monthly xlsx and maps each row to a
// normalized InspectionRecord. The data sheet is located by scanning every
// sheet for a header row containing a URN column (the published file carries
// cover and notes sheets first). Rows without a URN are dropped and counted.
func ParseInspectionWorkbook(data []byte) ([]models.InspectionRecord, int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		headerIdx, cols := findHeaderRow(rows)
		if headerIdx < 0 {
			continue
		}

		records, dropped := parseInspectionRows(rows[headerIdx+1:], cols)
		if dropped > 0 {
			log.Printf("Scraper: dropped %d workbook rows without a URN on sheet %q", dropped, sheet)
		}
		log.Printf("Scraper: parsed %d inspection records from sheet %q", len(records), sheet)
		return records, dropped, nil
	}
	return nil, 0, fmt.Errorf("no sheet with a URN column found in workbook")
}

// findHeaderRow scans the first few rows of a sheet for one containing a
// URN column and returns its index plus a normalized-name -> column map.
func findHeaderRow(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		cols := make(map[string]int, len(rows[i]))
		for j, cell := range rows[i] {
			name := normalizeHeader(cell)
			if name == "" {
				continue
			}
			if _, seen := cols[name]; !seen {
				cols[name] = j
			}
		}
		if _, ok := cols[colURN]; ok {
			return i, cols
		}
	}
	return -1, nil
}

func normalizeHeader(cell string) string {
	name := strings.ToLower(strings.TrimSpace(cell))
	name = strings.TrimSuffix(name, " (where applicable)")
	return name
}

func parseInspectionRows(rows [][]string, cols map[string]int) ([]models.InspectionRecord, int) {
	cellAt := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var (
		records []models.InspectionRecord
		dropped int
	)
	for _, row := range rows {
		urn := cellAt(row, colURN)
		if urn == "" {
			dropped++
			continue
		}

		leadership := cellAt(row, colLeadership)
		if leadership == "" {
			leadership = cellAt(row, colLeadershipShort)
		}
		prevOverall := cellAt(row, colPrevOverall)
		if prevOverall == "" {
			prevOverall = cellAt(row, colPrevOverallLong)
		}

		rec := models.InspectionRecord{
			URN:                     urn,
			SchoolName:              cellAt(row, colSchoolName),
			InspectionType:          cellAt(row, colInspectionType),
			InspectionDate:          parseWorkbookDate(cellAt(row, colInspectionDate)),
			PublishedDate:           parseWorkbookDate(cellAt(row, colPublicationDate)),
			OverallEffectiveness:    NormalizeGrade(cellAt(row, colOverall)),
			QualityOfEducation:      NormalizeGrade(cellAt(row, colQualityOfEducation)),
			BehaviourAndAttitudes:   NormalizeGrade(cellAt(row, colBehaviour)),
			PersonalDevelopment:     NormalizeGrade(cellAt(row, colPersonalDev)),
			LeadershipAndManagement: NormalizeGrade(leadership),
			EarlyYearsProvision:     NormalizeGrade(cellAt(row, colEarlyYears)),
			SixthFormProvision:      NormalizeGrade(cellAt(row, colSixthForm)),
			PreviousInspectionDate:  parseWorkbookDate(cellAt(row, colPrevInspectionDate)),
		}
		if prevOverall != "" {
			g := NormalizeGrade(prevOverall)
			rec.PreviousOverallEffectiveness = &g
		}
		records = append(records, rec)
	}
	return records, dropped
}

// NormalizeGrade maps a raw judgement cell to the canonical 1-4 ordinal.
// Codes 8 and 9, blanks, "NULL" and anything out of range mean the judgement
// does not apply; the record itself is still kept.
func NormalizeGrade(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < models.GradeOutstanding || v > models.GradeInadequate {
		return models.GradeNotApplicable
	}
	return v
}

var workbookDateLayouts = []string{
	"02/01/2006", // dd/mm/yyyy as formatted by the published file
	"2006-01-02",
	"2 January 2006",
	"02 Jan 2006",
}

// parseWorkbookDate normalizes a date cell to UTC midnight. Cells arrive as
// formatted strings or raw Excel serial numbers depending on the sheet's
// number formats; both are handled. Unparseable cells yield nil.
func parseWorkbookDate(raw string) *time.Time {
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	for _, layout := range workbookDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
