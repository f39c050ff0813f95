package model

import "time"

// Campaign lifecycle statuses.
const (
	CampaignPending   = "pending"
	CampaignApproved  = "approved"
	CampaignRejected  = "rejected"
	CampaignLive      = "live"
	CampaignExpired   = "expired"
	CampaignCancelled = "cancelled"
)

// Payment statuses carried on a campaign.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Truck operational statuses.
const (
	TruckOnline      = "online"
	TruckOffline     = "offline"
	TruckMaintenance = "maintenance"
)

// Playlist push statuses.
const (
	PushPending = "pending"
	PushPushed  = "pushed"
	PushFailed  = "failed"
)

type City struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type Route struct {
	ID          string    `json:"id"`
	CityID      string    `json:"cityId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TruckID     string    `json:"truckId,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

type GeoPoint struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type Truck struct {
	ID               string     `json:"id"`
	RouteID          string     `json:"routeId"`
	ControllerID     string     `json:"controllerId"`
	Status           string     `json:"status"`
	LastHeartbeatAt  *time.Time `json:"lastHeartbeatAt,omitempty"`
	UptimeSeconds    int64      `json:"uptimeSeconds"`
	LastAdPlaybackAt *time.Time `json:"lastAdPlaybackAt,omitempty"`
	GPS              *GeoPoint  `json:"gpsCoordinates,omitempty"`
	IsActive         bool       `json:"isActive"`
}

type Asset struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	URL         string    `json:"url"`
	DurationSec int       `json:"durationSec"`
	Checksum    string    `json:"checksum,omitempty"`
	Validated   bool      `json:"validated"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Campaign is a slot reservation on a route's truck for a fixed-length
// package. StartDate and EndDate are inclusive UTC calendar days and satisfy
// EndDate = StartDate + packageDays - 1.
type Campaign struct {
	ID              string     `json:"id"`
	AdvertiserID    string     `json:"advertiserId"`
	RouteID         string     `json:"routeId"`
	TruckID         string     `json:"truckId"`
	AssetID         string     `json:"assetId"`
	Package         string     `json:"package"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	Status          string     `json:"status"`
	PaymentStatus   string     `json:"paymentStatus"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type PlaylistItem struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Checksum string `json:"checksum"`
	Duration int    `json:"duration"`
	Loop     bool   `json:"loop"`
}

// Playlist is the daily media manifest for one truck. At most one exists per
// (truck, date); regeneration replaces the item list wholesale under a fresh
// version tag.
type Playlist struct {
	ID         string         `json:"id"`
	TruckID    string         `json:"truckId"`
	Date       time.Time      `json:"date"`
	Version    string         `json:"version"`
	Items      []PlaylistItem `json:"items"`
	PushStatus string         `json:"pushStatus"`
	PushedAt   *time.Time     `json:"pushedAt,omitempty"`
	IsActive   bool           `json:"isActive"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// PlaylistStats summarizes generated playlists for monitoring.
type PlaylistStats struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Pending  int            `json:"pending"`
	ByStatus map[string]int `json:"byStatus"`
}

// Availability is the slot ledger's answer for a requested window.
type Availability struct {
	Available            bool       `json:"available"`
	EarliestStartDate    time.Time  `json:"earliestStartDate"`
	ConflictingCampaigns []Campaign `json:"conflictingCampaigns"`
}

// RouteCapacity is a point-in-time snapshot of a route's slot usage.
type RouteCapacity struct {
	TotalSlots     int        `json:"totalSlots"`
	UsedSlots      int        `json:"usedSlots"`
	AvailableSlots int        `json:"availableSlots"`
	Campaigns      []Campaign `json:"campaigns"`
}

// Heartbeat is a device status report from a truck controller.
type Heartbeat struct {
	DeviceID         string     `json:"device_id"`
	Status           string     `json:"status"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	LastAdPlaybackAt *time.Time `json:"last_ad_playback_timestamp,omitempty"`
	GPS              *GeoPoint  `json:"gps_coordinates,omitempty"`
}

// DayUTC truncates t to the UTC calendar day it falls on. Playlist keys and
// campaign date ranges are always day-aligned.
func DayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
