package store

import (
	"context"
	"errors"
	"time"

	"fleetads/internal/model"
)

// Store is the persistence interface used by the API server, the playlist
// compiler, and the scheduler. Implementations must make ReserveCampaign and
// ApproveCampaign atomic with respect to the slot-capacity check: two racing
// bookings for the last slot on a route must not both succeed.
type Store interface {
	// Cities & routes
	CreateCity(ctx context.Context, name string) (model.City, error)
	ListCities(ctx context.Context) ([]model.City, error)
	GetRoute(ctx context.Context, id string) (model.Route, error)
	ListRoutes(ctx context.Context, cityID string) ([]model.Route, error)
	// CreateRoute provisions a route together with its truck.
	CreateRoute(ctx context.Context, cityID, name, description string) (model.Route, model.Truck, error)

	// Trucks
	GetTruck(ctx context.Context, id string) (model.Truck, error)
	ListTrucks(ctx context.Context) ([]model.Truck, error)
	RecordHeartbeat(ctx context.Context, truckID string, hb model.Heartbeat) (model.Truck, error)

	// Assets
	CreateAsset(ctx context.Context, a model.Asset) (model.Asset, error)
	GetAsset(ctx context.Context, id string) (model.Asset, error)

	// Campaigns
	// ReserveCampaign checks slot availability for the campaign's route and
	// window and inserts the campaign in one atomic step. Returns *NoSlotError
	// when the route is full.
	ReserveCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (model.Campaign, error)
	ListCampaignsByAdvertiser(ctx context.Context, advertiserID string) ([]model.Campaign, error)
	ListCampaignsByStatus(ctx context.Context, status string, page, limit int) ([]model.Campaign, int, error)
	// ApproveCampaign transitions a pending campaign to approved as of
	// startDate (which may differ from the requested date), re-validating
	// availability and recomputing the end date atomically.
	ApproveCampaign(ctx context.Context, id string, startDate time.Time, approver string) (model.Campaign, error)
	RejectCampaign(ctx context.Context, id, reason, approver string) (model.Campaign, error)
	// DeleteCampaignsByRoute hard-deletes campaigns on a route, optionally
	// filtered to an inclusive window on their start date.
	DeleteCampaignsByRoute(ctx context.Context, routeID string, from, to *time.Time) (int, error)
	// SweepCampaignStatuses promotes approved campaigns whose range covers
	// now to live and retires approved/live campaigns past their end date.
	SweepCampaignStatuses(ctx context.Context, now time.Time) (live, expired int, err error)

	// Slot ledger queries (slots.CampaignSource)
	ListCampaignsOverlapping(ctx context.Context, routeID string, from, to time.Time, statuses []string) ([]model.Campaign, error)
	ListActiveCampaigns(ctx context.Context, routeID string, asOf time.Time) ([]model.Campaign, error)
	// ListCampaignsForTruckOnDate returns approved/live campaigns on the
	// truck whose range covers date, ordered by campaign creation time.
	ListCampaignsForTruckOnDate(ctx context.Context, truckID string, date time.Time) ([]model.Campaign, error)

	// Playlists
	// UpsertPlaylist replaces the playlist for (truck, date) wholesale.
	UpsertPlaylist(ctx context.Context, p model.Playlist) (model.Playlist, error)
	GetPlaylist(ctx context.Context, truckID string, date time.Time) (model.Playlist, error)
	GetPlaylistByID(ctx context.Context, id string) (model.Playlist, error)
	MarkPlaylistPushed(ctx context.Context, id string) (model.Playlist, error)
	PlaylistStats(ctx context.Context) (model.PlaylistStats, error)

	// DashboardStats returns campaign/truck/playlist counters for the admin
	// dashboard.
	DashboardStats(ctx context.Context, now time.Time) (map[string]any, error)
}

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("campaign is not pending")
)

// NoSlotError reports a failed reservation together with the ledger's
// diagnostics so callers can surface the earliest opening.
type NoSlotError struct {
	Availability model.Availability
}

func (e *NoSlotError) Error() string { return "no slots available" }
