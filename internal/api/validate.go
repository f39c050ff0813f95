package api

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"fleetads/internal/slots"
)

type createCampaignRequest struct {
	RouteID   string `json:"routeId"`
	AssetID   string `json:"assetId"`
	Package   string `json:"package"`
	StartDate string `json:"startDate"`
}

type availabilityRequest struct {
	RouteID   string `json:"routeId"`
	Package   string `json:"package"`
	StartDate string `json:"startDate"`
}

// billingDays are the only days of month a campaign may start on.
var billingDays = map[int]struct{}{1: {}, 15: {}, 16: {}}

// parseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC3339)", s)
	}
	return t.UTC(), nil
}

func validateAvailabilityRequest(req *availabilityRequest) error {
	if strings.TrimSpace(req.RouteID) == "" {
		return fmt.Errorf("routeId is required")
	}
	if req.Package != "15" && req.Package != "30" {
		return fmt.Errorf("invalid package: %s (allowed: 15,30)", req.Package)
	}
	if strings.TrimSpace(req.StartDate) == "" {
		return fmt.Errorf("startDate is required")
	}
	return nil
}

func validateCreateCampaignRequest(req *createCampaignRequest, start time.Time) error {
	if strings.TrimSpace(req.RouteID) == "" {
		return fmt.Errorf("routeId is required")
	}
	if strings.TrimSpace(req.AssetID) == "" {
		return fmt.Errorf("assetId is required")
	}
	if _, ok := slots.PackageDays(req.Package); !ok {
		return fmt.Errorf("invalid package: %s (allowed: 7,15,30)", req.Package)
	}
	if _, ok := billingDays[start.Day()]; !ok {
		return fmt.Errorf("startDate must fall on day 1, 15 or 16 of the month")
	}
	return nil
}

func validateRejectReason(reason string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(reason))
	if n < 10 || n > 500 {
		return fmt.Errorf("reason must be between 10 and 500 characters")
	}
	return nil
}
