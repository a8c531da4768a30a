// handlers/tools.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jthorne/uk-schools-mcp/models"
	"github.com/jthorne/uk-schools-mcp/services"
)

// Deps are the services the tool surface formats requests and responses
// for. Handlers stay thin: argument extraction, one service call, JSON out.
type Deps struct {
	GIAS      *services.GIASService
	Ofsted    *services.OfstedService
	EES       *services.EESService
	Postcodes *services.PostcodeService
}

// Register adds every tool to the MCP server.
func Register(s *server.MCPServer, deps Deps) {
	registerSearchSchools(s, deps)
	registerGetSchoolDetails(s, deps)
	registerGetOfstedRating(s, deps)
	registerFindSchoolsNearPostcode(s, deps)
	registerCompareSchools(s, deps)
	registerDiscoverDataset(s, deps)
	registerListPublications(s, deps)
	registerGetDatasetMetadata(s, deps)
	registerQueryDataset(s, deps)
}

func registerSearchSchools(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("search_schools",
		mcp.WithDescription("Search for UK schools by name, postcode, or local authority. " +
			"Returns matching open schools with name, address, type, phase, and contact details."),
		mcp.WithString("query", mcp.Required(), mcp.Description("School name, postcode, or search term")),
		mcp.WithString("council", mcp.Description("Local authority name (e.g. 'Milton Keynes')")),
		mcp.WithString("phase", mcp.Description("Phase of education filter (e.g. 'primary', 'secondary')")),
		mcp.WithString("type", mcp.Description("Type of establishment filter (e.g. 'academy')")),
		mcp.WithNumber("limit", mcp.DefaultNumber(10), mcp.Description("Maximum number of results")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		results, err := deps.GIAS.Search(ctx, services.SearchOptions{
			Query:          query,
			LocalAuthority: req.GetString("council", ""),
			Phase:          req.GetString("phase", ""),
			Type:           req.GetString("type", ""),
			Limit:          req.GetInt("limit", 10),
		})
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{"count": len(results), "schools": results})
	})
}

func registerGetSchoolDetails(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("get_school_details",
		mcp.WithDescription("Get full registry details for a school by its URN, including " +
			"address, capacity, head teacher, and admissions information."),
		mcp.WithString("urn", mcp.Required(), mcp.Description("Unique Reference Number of the school")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urn, err := req.RequireString("urn")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		school, err := deps.GIAS.GetByURN(ctx, urn)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{"school": school, "gias_url": school.GIASDetailURL()})
	})
}

func registerGetOfstedRating(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("get_ofsted_rating",
		mcp.WithDescription("Get the current Ofsted inspection outcome for a school: overall " +
			"effectiveness, judgement-area grades, inspection date, trajectory against the " +
			"previous inspection, and a link to the full report."),
		mcp.WithString("urn", mcp.Required(), mcp.Description("School URN")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urn, err := req.RequireString("urn")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rec, err := deps.Ofsted.GetRatings(ctx, urn)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(ratingView(rec))
	})
}

func registerFindSchoolsNearPostcode(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("find_schools_near_postcode",
		mcp.WithDescription("Find schools within a radius of a UK postcode, sorted by distance. " +
			"Useful for catchment-area questions. Zero matches is a valid empty result."),
		mcp.WithString("postcode", mcp.Required(), mcp.Description("UK postcode (e.g. 'MK9 3BZ')")),
		mcp.WithNumber("radius_km", mcp.DefaultNumber(3), mcp.Description("Search radius in kilometres")),
		mcp.WithString("phase", mcp.Description("Phase of education filter")),
		mcp.WithString("type", mcp.Description("Type of establishment filter")),
		mcp.WithNumber("limit", mcp.DefaultNumber(20), mcp.Description("Maximum number of results")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		postcode, err := req.RequireString("postcode")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lat, lng, err := deps.Postcodes.Geocode(ctx, postcode)
		if err != nil {
			return toolError(err)
		}
		results, err := deps.GIAS.FindNear(ctx, lat, lng, req.GetFloat("radius_km", 3), services.SearchOptions{
			Phase: req.GetString("phase", ""),
			Type:  req.GetString("type", ""),
			Limit: req.GetInt("limit", 20),
		})
		if err != nil {
			return toolError(err)
		}

		origin := map[string]any{"postcode": postcode, "latitude": lat, "longitude": lng}
		// Best-effort area context; a failure here never fails the search.
		if nearby, err := deps.Postcodes.ReverseGeocode(ctx, lat, lng); err != nil {
			log.Printf("Handler: reverse geocode of origin failed: %v", err)
		} else if len(nearby) > 0 {
			codes := make([]string, 0, len(nearby))
			for _, pc := range nearby {
				codes = append(codes, pc.Postcode)
			}
			origin["nearby_postcodes"] = codes
		}

		return jsonResult(map[string]any{
			"origin":  origin,
			"count":   len(results),
			"schools": results,
		})
	})
}

func registerCompareSchools(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("compare_schools",
		mcp.WithDescription("Compare 2-4 schools side-by-side: registry details plus the latest " +
			"inspection outcome for each."),
		mcp.WithArray("urns", mcp.Required(), mcp.Description("School URNs to compare (2-4)"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urns := req.GetStringSlice("urns", nil)
		if len(urns) < 2 || len(urns) > 4 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid_argument: expected 2-4 URNs, got %d", len(urns))), nil
		}

		comparison := make([]map[string]any, 0, len(urns))
		for _, urn := range urns {
			school, err := deps.GIAS.GetByURN(ctx, urn)
			if err != nil {
				return toolError(err)
			}
			entry := map[string]any{"school": school}
			if rec, err := deps.Ofsted.GetRatings(ctx, urn); err == nil {
				entry["inspection"] = ratingView(rec)
			} else if errors.Is(err, services.ErrNotFound) {
				entry["inspection"] = "not yet inspected"
			} else {
				return toolError(err)
			}
			comparison = append(comparison, entry)
		}
		return jsonResult(map[string]any{"schools": comparison})
	})
}

func registerDiscoverDataset(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("discover_dataset",
		mcp.WithDescription("Resolve a named statistics topic (absence, attendance, exclusions, " +
			"performance, applications, sen, funding, workforce) to its DfE publication and " +
			"data set, with the indicators and filters available for querying it."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic name")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := deps.EES.DiscoverDataset(ctx, topic)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(result)
	})
}

func registerListPublications(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("list_publications",
		mcp.WithDescription("Browse the DfE statistics publication catalogue, optionally " +
			"filtered by a search term. Use discover_dataset when a known topic fits."),
		mcp.WithString("search", mcp.Description("Free-text search over publication titles")),
		mcp.WithNumber("page", mcp.DefaultNumber(1), mcp.Description("Result page, starting at 1")),
		mcp.WithNumber("page_size", mcp.DefaultNumber(20), mcp.Description("Publications per page")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		publications, err := deps.EES.ListPublications(ctx,
			req.GetString("search", ""), req.GetInt("page", 1), req.GetInt("page_size", 20))
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{"count": len(publications), "publications": publications})
	})
}

func registerGetDatasetMetadata(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("get_dataset_metadata",
		mcp.WithDescription("Get the filters, indicators, time periods, and locations available " +
			"for a DfE statistics data set."),
		mcp.WithString("dataset_id", mcp.Required(), mcp.Description("EES data set identifier")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasetID, err := req.RequireString("dataset_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		meta, err := deps.EES.GetMetadata(ctx, datasetID)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(meta)
	})
}

func registerQueryDataset(s *server.MCPServer, deps Deps) {
	tool := mcp.NewTool("query_dataset",
		mcp.WithDescription("Query a DfE statistics data set. Identifiers are validated against " +
			"the data set's metadata before the remote query is issued. Time periods accept " +
			"'2023' or '2023|AY'; locations accept an option id or 'LEVEL|id'."),
		mcp.WithString("dataset_id", mcp.Required(), mcp.Description("EES data set identifier")),
		mcp.WithArray("indicators", mcp.Required(), mcp.Description("Indicator ids to return"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("filters", mcp.Description("Filter item ids"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("time_periods", mcp.Description("Time periods, e.g. '2023' or '2023|AY'"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("locations", mcp.Description("Location ids, e.g. 'LA|<id>'"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("geographic_levels", mcp.Description("Geographic level codes, e.g. 'NAT', 'LA'"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasetID, err := req.RequireString("dataset_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		records, err := deps.EES.Query(ctx, datasetID, services.QueryOptions{
			Indicators:       req.GetStringSlice("indicators", nil),
			Filters:          req.GetStringSlice("filters", nil),
			TimePeriods:      req.GetStringSlice("time_periods", nil),
			Locations:        req.GetStringSlice("locations", nil),
			GeographicLevels: req.GetStringSlice("geographic_levels", nil),
		})
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{"count": len(records), "results": records})
	})
}

// ratingView renders an inspection record with human-readable grade labels
// alongside the ordinals.
func ratingView(rec *models.InspectionRecord) map[string]any {
	view := map[string]any{
		"urn":             rec.URN,
		"school_name":     rec.SchoolName,
		"inspection_type": rec.InspectionType,
		"overall_effectiveness": map[string]any{
			"grade": rec.OverallEffectiveness,
			"label": models.GradeLabel(rec.OverallEffectiveness),
		},
		"judgements": map[string]string{
			"quality_of_education":      models.GradeLabel(rec.QualityOfEducation),
			"behaviour_and_attitudes":   models.GradeLabel(rec.BehaviourAndAttitudes),
			"personal_development":      models.GradeLabel(rec.PersonalDevelopment),
			"leadership_and_management": models.GradeLabel(rec.LeadershipAndManagement),
			"early_years_provision":     models.GradeLabel(rec.EarlyYearsProvision),
			"sixth_form_provision":      models.GradeLabel(rec.SixthFormProvision),
		},
		"trajectory": rec.Trajectory(),
		"report_url": rec.ReportURL(),
	}
	if rec.InspectionDate != nil {
		view["inspection_date"] = rec.InspectionDate.Format("2006-01-02")
	}
	if rec.PublishedDate != nil {
		view["published_date"] = rec.PublishedDate.Format("2006-01-02")
	}
	if rec.PreviousOverallEffectiveness != nil {
		prev := map[string]any{
			"grade": *rec.PreviousOverallEffectiveness,
			"label": models.GradeLabel(*rec.PreviousOverallEffectiveness),
		}
		if rec.PreviousInspectionDate != nil {
			prev["inspection_date"] = rec.PreviousInspectionDate.Format("2006-01-02")
		}
		view["previous"] = prev
	}
	return view
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Printf("Handler: failed to marshal tool result: %v", err)
		return mcp.NewToolResultError("internal: failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

// toolError translates a service error into a structured tool response
// naming the error kind. Tool-level failures are results, not protocol
// errors, so the assistant can read and react to them.
func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(describeError(err)), nil
}

func describeError(err error) string {
	kind := "internal"
	switch {
	case errors.Is(err, services.ErrInvalidPostcode):
		kind = "invalid_postcode"
	case errors.Is(err, services.ErrTopicNotRecognized):
		kind = "topic_not_recognized"
	case errors.Is(err, services.ErrInvalidArgument):
		kind = "invalid_argument"
	case errors.Is(err, services.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, services.ErrValidation):
		kind = "validation_failure"
	case errors.Is(err, services.ErrSourceUnavailable):
		kind = "source_unavailable"
	}
	return fmt.Sprintf("%s: %v", kind, err)
}
