// Package slots implements the capacity-constrained slot ledger for route
// advertising inventory.
package slots

import (
	"context"
	"fmt"
	"time"

	"fleetads/internal/model"
)

// TotalSlots is the maximum number of concurrently running campaigns a route
// may hold at any instant.
const TotalSlots = 7

var packageDays = map[string]int{"7": 7, "15": 15, "30": 30}

// PackageDays maps a package code to its length in days.
func PackageDays(pkg string) (int, bool) {
	d, ok := packageDays[pkg]
	return d, ok
}

// EndDate returns the inclusive last day of a booking starting at start:
// start + days - 1.
func EndDate(start time.Time, days int) time.Time {
	return model.DayUTC(start).AddDate(0, 0, days-1)
}

// ScanEnd returns the end of the conflict scan window: start + days. One day
// wider than the booking itself, a deliberately conservative overlap check.
func ScanEnd(start time.Time, days int) time.Time {
	return model.DayUTC(start).AddDate(0, 0, days)
}

// Evaluate decides availability for a window starting at start given the
// conflicting campaigns on the route, which must be the approved/live
// campaigns intersecting the scan window ordered by ascending end date.
// With fewer than TotalSlots conflicts the slot is free at the requested
// date; otherwise the earliest opening is the day after the soonest-ending
// conflict, and up to TotalSlots conflicts are returned for diagnostics.
func Evaluate(start time.Time, conflicts []model.Campaign) model.Availability {
	start = model.DayUTC(start)
	if len(conflicts) < TotalSlots {
		return model.Availability{
			Available:            true,
			EarliestStartDate:    start,
			ConflictingCampaigns: []model.Campaign{},
		}
	}
	top := conflicts
	if len(top) > TotalSlots {
		top = top[:TotalSlots]
	}
	return model.Availability{
		Available:            false,
		EarliestStartDate:    model.DayUTC(top[0].EndDate).AddDate(0, 0, 1),
		ConflictingCampaigns: top,
	}
}

// CampaignSource is the read surface the ledger needs from the store.
type CampaignSource interface {
	// ListCampaignsOverlapping returns campaigns on the route whose
	// [StartDate, EndDate] intersects [from, to] with status in statuses,
	// ordered by ascending end date.
	ListCampaignsOverlapping(ctx context.Context, routeID string, from, to time.Time, statuses []string) ([]model.Campaign, error)
	// ListActiveCampaigns returns approved/live campaigns on the route that
	// have not ended as of asOf.
	ListActiveCampaigns(ctx context.Context, routeID string, asOf time.Time) ([]model.Campaign, error)
}

// ActiveStatuses are the campaign statuses that occupy a slot.
var ActiveStatuses = []string{model.CampaignApproved, model.CampaignLive}

// Ledger answers advisory availability questions. The authoritative
// check-and-reserve happens inside the store so that two racing bookings
// cannot both pass; the ledger and the store share Evaluate.
type Ledger struct {
	Campaigns CampaignSource
}

func NewLedger(src CampaignSource) *Ledger { return &Ledger{Campaigns: src} }

// Check reports whether routeID has a free slot for pkg starting at start,
// and if not, the earliest date one opens.
func (l *Ledger) Check(ctx context.Context, routeID, pkg string, start time.Time) (model.Availability, error) {
	days, ok := PackageDays(pkg)
	if !ok {
		return model.Availability{}, fmt.Errorf("unknown package %q", pkg)
	}
	start = model.DayUTC(start)
	conflicts, err := l.Campaigns.ListCampaignsOverlapping(ctx, routeID, start, ScanEnd(start, days), ActiveStatuses)
	if err != nil {
		return model.Availability{}, fmt.Errorf("capacity check failed: %w", err)
	}
	return Evaluate(start, conflicts), nil
}

// Capacity snapshots current slot usage on routeID as of asOf, independent of
// any requested window.
func (l *Ledger) Capacity(ctx context.Context, routeID string, asOf time.Time) (model.RouteCapacity, error) {
	active, err := l.Campaigns.ListActiveCampaigns(ctx, routeID, model.DayUTC(asOf))
	if err != nil {
		return model.RouteCapacity{}, fmt.Errorf("capacity check failed: %w", err)
	}
	return model.RouteCapacity{
		TotalSlots:     TotalSlots,
		UsedSlots:      len(active),
		AvailableSlots: TotalSlots - len(active),
		Campaigns:      active,
	}, nil
}
