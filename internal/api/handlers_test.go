package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"fleetads/internal/config"
	"fleetads/internal/model"
	"fleetads/internal/slots"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := NewServer(&config.Config{}, log)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func seedInventory(t *testing.T, s *Server) (model.Route, model.Asset) {
	t.Helper()
	ctx := context.Background()
	city, err := s.Store.CreateCity(ctx, "Karachi")
	if err != nil {
		t.Fatalf("CreateCity: %v", err)
	}
	route, _, err := s.Store.CreateRoute(ctx, city.ID, "Clifton Loop", "")
	if err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	asset, err := s.Store.CreateAsset(ctx, model.Asset{
		OwnerID: "adv1", URL: "https://cdn.test/a.mp4", DurationSec: 30, Validated: true,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return route, asset
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

var advertiser = map[string]string{"X-User-Id": "adv1", "X-Role": "advertiser"}

func createCampaign(t *testing.T, s *Server, routeID, assetID, pkg, start string) model.Campaign {
	t.Helper()
	rr := doJSON(t, s.CampaignsHandler, http.MethodPost, "/v1/campaigns", map[string]any{
		"routeId": routeID, "assetId": assetID, "package": pkg, "startDate": start,
	}, advertiser)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create campaign: got %d: %s", rr.Code, rr.Body.String())
	}
	var c model.Campaign
	decode(t, rr, &c)
	return c
}

func approveCampaign(t *testing.T, s *Server, id string) model.Campaign {
	t.Helper()
	rr := doJSON(t, s.AdminCampaignByIDHandler, http.MethodPost, "/v1/admin/campaigns/"+id+"/approve", map[string]any{}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: got %d: %s", rr.Code, rr.Body.String())
	}
	var c model.Campaign
	decode(t, rr, &c)
	return c
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestAvailabilityCheck(t *testing.T) {
	s := newTestServer(t)
	route, _ := seedInventory(t, s)
	rr := doJSON(t, s.AvailabilityHandler, http.MethodPost, "/v1/availability/check", map[string]any{
		"routeId": route.ID, "package": "15", "startDate": "2024-01-01",
	}, nil)
	if rr.Code != 200 {
		t.Fatalf("check: got %d: %s", rr.Code, rr.Body.String())
	}
	var avail model.Availability
	decode(t, rr, &avail)
	if !avail.Available {
		t.Fatal("empty route should be available")
	}

	// Package 7 is purchasable but not offered on the availability form.
	rr = doJSON(t, s.AvailabilityHandler, http.MethodPost, "/v1/availability/check", map[string]any{
		"routeId": route.ID, "package": "7", "startDate": "2024-01-01",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("package 7: got %d", rr.Code)
	}

	rr = doJSON(t, s.AvailabilityHandler, http.MethodPost, "/v1/availability/check", map[string]any{
		"routeId": "missing", "package": "15", "startDate": "2024-01-01",
	}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route: got %d", rr.Code)
	}
}

func TestCampaignCreateValidation(t *testing.T) {
	s := newTestServer(t)
	route, asset := seedInventory(t, s)

	// Start day off the billing cycle.
	rr := doJSON(t, s.CampaignsHandler, http.MethodPost, "/v1/campaigns", map[string]any{
		"routeId": route.ID, "assetId": asset.ID, "package": "15", "startDate": "2024-01-05",
	}, advertiser)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("billing day: got %d", rr.Code)
	}

	// Unknown package.
	rr = doJSON(t, s.CampaignsHandler, http.MethodPost, "/v1/campaigns", map[string]any{
		"routeId": route.ID, "assetId": asset.ID, "package": "14", "startDate": "2024-01-01",
	}, advertiser)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("package: got %d", rr.Code)
	}

	// Unknown asset.
	rr = doJSON(t, s.CampaignsHandler, http.MethodPost, "/v1/campaigns", map[string]any{
		"routeId": route.ID, "assetId": "missing", "package": "15", "startDate": "2024-01-01",
	}, advertiser)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("asset: got %d", rr.Code)
	}

	// Asset owned by another advertiser.
	foreign, err := s.Store.CreateAsset(context.Background(), model.Asset{
		OwnerID: "adv2", URL: "https://cdn.test/b.mp4", DurationSec: 30, Validated: true,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	rr = doJSON(t, s.CampaignsHandler, http.MethodPost, "/v1/campaigns", map[string]any{
		"routeId": route.ID, "assetId": foreign.ID, "package": "15", "startDate": "2024-01-01",
	}, advertiser)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("foreign asset: got %d", rr.Code)
	}

	// Valid: endDate is start + 15 - 1.
	c := createCampaign(t, s, route.ID, asset.ID, "15", "2024-01-01")
	if got := c.EndDate.Format("2006-01-02"); got != "2024-01-15" {
		t.Fatalf("endDate: got %s", got)
	}
	if c.Status != model.CampaignPending {
		t.Fatalf("status: got %s", c.Status)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	s := newTestServer(t)
	route, asset := seedInventory(t, s)
	c := createCampaign(t, s, route.ID, asset.ID, "15", "2024-01-01")

	// Pending review list.
	rr := doJSON(t, s.AdminCampaignsHandler, http.MethodGet, "/v1/admin/campaigns?status=pending", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("list: got %d", rr.Code)
	}
	var page struct {
		Items []model.Campaign `json:"items"`
		Total int              `json:"total"`
	}
	decode(t, rr, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("pending page: total=%d items=%d", page.Total, len(page.Items))
	}

	approved := approveCampaign(t, s, c.ID)
	if approved.Status != model.CampaignApproved || approved.ApprovedAt == nil {
		t.Fatalf("approved: %+v", approved)
	}

	// Approving again is rejected.
	rr = doJSON(t, s.AdminCampaignByIDHandler, http.MethodPost, "/v1/admin/campaigns/"+c.ID+"/approve", map[string]any{}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("double approve: got %d", rr.Code)
	}

	// The advertiser sees it under /mine; a stranger does not see it by id.
	rr = doJSON(t, s.CampaignByIDHandler, http.MethodGet, "/v1/campaigns/mine", nil, advertiser)
	if rr.Code != 200 {
		t.Fatalf("mine: got %d", rr.Code)
	}
	rr = doJSON(t, s.CampaignByIDHandler, http.MethodGet, "/v1/campaigns/"+c.ID, nil,
		map[string]string{"X-User-Id": "adv2", "X-Role": "advertiser"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("stranger: got %d", rr.Code)
	}
}

func TestRejectCampaign(t *testing.T) {
	s := newTestServer(t)
	route, asset := seedInventory(t, s)
	c := createCampaign(t, s, route.ID, asset.ID, "15", "2024-01-01")

	// Reason below the minimum length.
	rr := doJSON(t, s.AdminCampaignByIDHandler, http.MethodPost, "/v1/admin/campaigns/"+c.ID+"/reject",
		map[string]any{"reason": "too dark"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short reason: got %d", rr.Code)
	}

	// Length is counted in characters, not bytes: six CJK runes is still too short.
	rr = doJSON(t, s.AdminCampaignByIDHandler, http.MethodPost, "/v1/admin/campaigns/"+c.ID+"/reject",
		map[string]any{"reason": "内容が不適切"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short multibyte reason: got %d", rr.Code)
	}

	rr = doJSON(t, s.AdminCampaignByIDHandler, http.MethodPost, "/v1/admin/campaigns/"+c.ID+"/reject",
		map[string]any{"reason": "creative does not meet the content policy"}, nil)
	if rr.Code != 200 {
		t.Fatalf("reject: got %d: %s", rr.Code, rr.Body.String())
	}
	var rejected model.Campaign
	decode(t, rr, &rejected)
	if rejected.Status != model.CampaignRejected || rejected.RejectionReason == "" {
		t.Fatalf("rejected: %+v", rejected)
	}
}

func TestSlotExhaustionConflictPayload(t *testing.T) {
	s := newTestServer(t)
	route, asset := seedInventory(t, s)
	for i := 0; i < slots.TotalSlots; i++ {
		c := createCampaign(t, s, route.ID, asset.ID, "30", "2024-02-01")
		approveCampaign(t, s, c.ID)
	}
	rr := doJSON(t, s.CampaignsHandler, http.MethodPost, "/v1/campaigns", map[string]any{
		"routeId": route.ID, "assetId": asset.ID, "package": "30", "startDate": "2024-02-01",
	}, advertiser)
	if rr.Code != http.StatusConflict {
		t.Fatalf("full route: got %d: %s", rr.Code, rr.Body.String())
	}
	var prob struct {
		EarliestStartDate    time.Time        `json:"earliestStartDate"`
		ConflictingCampaigns []model.Campaign `json:"conflictingCampaigns"`
	}
	decode(t, rr, &prob)
	if got := prob.EarliestStartDate.Format("2006-01-02"); got != "2024-03-02" {
		t.Fatalf("earliest: got %s", got)
	}
	if len(prob.ConflictingCampaigns) != slots.TotalSlots {
		t.Fatalf("conflicts: got %d", len(prob.ConflictingCampaigns))
	}

	// Availability check mirrors the same diagnostics.
	rr = doJSON(t, s.AvailabilityHandler, http.MethodPost, "/v1/availability/check", map[string]any{
		"routeId": route.ID, "package": "30", "startDate": "2024-02-01",
	}, nil)
	if rr.Code != 200 {
		t.Fatalf("check: got %d", rr.Code)
	}
	var avail model.Availability
	decode(t, rr, &avail)
	if avail.Available {
		t.Fatal("full route reported available")
	}

	// Capacity snapshot is as-of-now and independent of the booked window.
	rr = doJSON(t, s.RouteCapacityHandler, http.MethodGet, "/v1/routes/"+route.ID+"/capacity", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("capacity: got %d", rr.Code)
	}
}

func TestPlaylistEndpoints(t *testing.T) {
	s := newTestServer(t)
	route, asset := seedInventory(t, s)
	c := createCampaign(t, s, route.ID, asset.ID, "7", "2024-01-01")
	approveCampaign(t, s, c.ID)

	rr := doJSON(t, s.AdminPlaylistsHandler, http.MethodPost, "/v1/admin/playlists/generate",
		map[string]any{"truckId": route.TruckID, "date": "2024-01-03"}, nil)
	if rr.Code != 200 {
		t.Fatalf("generate: got %d: %s", rr.Code, rr.Body.String())
	}
	var pl model.Playlist
	decode(t, rr, &pl)
	if len(pl.Items) != 1 || pl.Items[0].ID != asset.ID {
		t.Fatalf("playlist: %+v", pl)
	}

	rr = doJSON(t, s.AdminPlaylistsHandler, http.MethodPost, "/v1/admin/playlists/"+pl.ID+"/push", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("push: got %d", rr.Code)
	}
	var pushed model.Playlist
	decode(t, rr, &pushed)
	if pushed.PushStatus != model.PushPushed {
		t.Fatalf("push status: %s", pushed.PushStatus)
	}

	rr = doJSON(t, s.AdminPlaylistsHandler, http.MethodPost, "/v1/admin/playlists/generate-all",
		map[string]any{"date": "2024-01-03"}, nil)
	if rr.Code != 200 {
		t.Fatalf("generate-all: got %d", rr.Code)
	}
	var bulk struct {
		Summary struct {
			Total      int `json:"total"`
			Successful int `json:"successful"`
		} `json:"summary"`
	}
	decode(t, rr, &bulk)
	if bulk.Summary.Total != 1 || bulk.Summary.Successful != 1 {
		t.Fatalf("bulk summary: %+v", bulk.Summary)
	}

	rr = doJSON(t, s.AdminPlaylistsHandler, http.MethodGet, "/v1/admin/playlists/stats", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("stats: got %d", rr.Code)
	}

	rr = doJSON(t, s.AdminTruckByIDHandler, http.MethodGet, "/v1/admin/trucks/"+route.TruckID+"/playlist?date=2024-01-03", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("truck playlist: got %d", rr.Code)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	s := newTestServer(t)
	seedInventory(t, s)
	rr := doJSON(t, s.SchedulerHandler, http.MethodGet, "/v1/admin/scheduler/status", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("status: got %d", rr.Code)
	}
	var st map[string]any
	decode(t, rr, &st)
	if st["tasksCount"] != float64(4) {
		t.Fatalf("tasksCount: %v", st["tasksCount"])
	}
	rr = doJSON(t, s.SchedulerHandler, http.MethodPost, "/v1/admin/scheduler/refresh",
		map[string]any{"date": "2024-01-03"}, nil)
	if rr.Code != 200 {
		t.Fatalf("refresh: got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHardwareEndpoints(t *testing.T) {
	s := newTestServer(t)
	route, _ := seedInventory(t, s)

	rr := doJSON(t, s.HardwareHandler, http.MethodPost, "/v1/hardware/"+route.TruckID+"/heartbeat",
		map[string]any{"device_id": "TRUCK_1", "status": "online", "uptime_seconds": 7200}, nil)
	if rr.Code != 200 {
		t.Fatalf("heartbeat: got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s.HardwareHandler, http.MethodPost, "/v1/hardware/"+route.TruckID+"/heartbeat",
		map[string]any{"status": "rebooting"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad status: got %d", rr.Code)
	}

	// No playlist yet: devices get an empty v0 manifest, not a 404.
	rr = doJSON(t, s.HardwareHandler, http.MethodGet, "/v1/hardware/"+route.TruckID+"/playlist", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("playlist: got %d", rr.Code)
	}
	var res struct {
		Version  string               `json:"version"`
		Playlist []model.PlaylistItem `json:"playlist"`
	}
	decode(t, rr, &res)
	if res.Version != "v0" || len(res.Playlist) != 0 {
		t.Fatalf("empty manifest: %+v", res)
	}

	// Telemetry reflects the fresh heartbeat.
	rr = doJSON(t, s.HardwareHandler, http.MethodGet, "/v1/hardware/"+route.TruckID+"/telemetry", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("telemetry: got %d", rr.Code)
	}
	var truck model.Truck
	decode(t, rr, &truck)
	if truck.Status != model.TruckOnline {
		t.Fatalf("telemetry status: %s", truck.Status)
	}
}

func TestHardwareAuthAndRateLimit(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.Config{}
	cfg.Hardware.APIKey = "secret-key"
	s, err := NewServer(cfg, log)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	route, _ := seedInventory(t, s)

	rr := doJSON(t, s.HardwareHandler, http.MethodGet, "/v1/hardware/"+route.TruckID+"/telemetry", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: got %d", rr.Code)
	}
	key := map[string]string{"X-API-Key": "secret-key"}
	rr = doJSON(t, s.HardwareHandler, http.MethodGet, "/v1/hardware/"+route.TruckID+"/telemetry", nil, key)
	if rr.Code != 200 {
		t.Fatalf("with key: got %d", rr.Code)
	}

	// Burst through the per-device limit.
	limited := false
	for i := 0; i < 10; i++ {
		rr = doJSON(t, s.HardwareHandler, http.MethodGet, "/v1/hardware/"+route.TruckID+"/telemetry", nil, key)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("per-device rate limit never engaged")
	}
	// A different device is unaffected.
	rr = doJSON(t, s.HardwareHandler, http.MethodGet, "/v1/hardware/other-truck/telemetry", nil, key)
	if rr.Code == http.StatusTooManyRequests {
		t.Fatalf("other device limited: got %d", rr.Code)
	}
}

func TestAdminForbiddenForAdvertiser(t *testing.T) {
	s := newTestServer(t)
	for _, tc := range []struct {
		h      http.HandlerFunc
		method string
		path   string
	}{
		{s.AdminCampaignsHandler, http.MethodGet, "/v1/admin/campaigns"},
		{s.AdminTrucksHandler, http.MethodGet, "/v1/admin/trucks"},
		{s.AdminDashboardHandler, http.MethodGet, "/v1/admin/dashboard"},
		{s.SchedulerHandler, http.MethodGet, "/v1/admin/scheduler/status"},
	} {
		rr := doJSON(t, tc.h, tc.method, tc.path, nil, advertiser)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: got %d", tc.path, rr.Code)
		}
	}
}

func TestProvisioningAndDashboard(t *testing.T) {
	s := newTestServer(t)
	rr := doJSON(t, s.AdminCitiesHandler, http.MethodPost, "/v1/admin/cities", map[string]any{"name": "Islamabad"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create city: got %d", rr.Code)
	}
	var city model.City
	decode(t, rr, &city)

	rr = doJSON(t, s.AdminCityRoutesHandler, http.MethodPost, "/v1/admin/cities/"+city.ID+"/routes",
		map[string]any{"name": "Blue Area Run", "description": "Jinnah Avenue loop"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create route: got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Route model.Route `json:"route"`
		Truck model.Truck `json:"truck"`
	}
	decode(t, rr, &created)
	if created.Route.TruckID != created.Truck.ID || created.Truck.RouteID != created.Route.ID {
		t.Fatalf("route/truck not linked: %+v / %+v", created.Route, created.Truck)
	}

	rr = doJSON(t, s.AdminCityRoutesHandler, http.MethodGet, "/v1/admin/cities/"+city.ID+"/routes", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("list routes: got %d", rr.Code)
	}

	rr = doJSON(t, s.AdminDashboardHandler, http.MethodGet, "/v1/admin/dashboard", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("dashboard: got %d", rr.Code)
	}
}

func TestBulkDeleteCampaigns(t *testing.T) {
	s := newTestServer(t)
	route, asset := seedInventory(t, s)
	createCampaign(t, s, route.ID, asset.ID, "7", "2024-01-01")
	createCampaign(t, s, route.ID, asset.ID, "7", "2024-02-01")
	path := fmt.Sprintf("/v1/admin/routes/%s/campaigns?startDate=2024-01-15&endDate=2024-02-15", route.ID)
	rr := doJSON(t, s.AdminRouteCampaignsHandler, http.MethodDelete, path, nil, nil)
	if rr.Code != 200 {
		t.Fatalf("delete: got %d: %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Deleted int `json:"deleted"`
	}
	decode(t, rr, &res)
	if res.Deleted != 1 {
		t.Fatalf("deleted: got %d", res.Deleted)
	}
}
