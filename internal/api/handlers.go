package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleetads/internal/events"
	"fleetads/internal/metrics"
	"fleetads/internal/model"
	"fleetads/internal/store"
)

// heartbeatStale is how long a truck may go without a heartbeat before its
// reported status is overridden to offline. The override is not persisted.
const heartbeatStale = 5 * time.Minute

// storeProblem maps store errors to problem responses. No-slot failures get a
// 409 carrying the ledger diagnostics.
func (s *Server) storeProblem(w http.ResponseWriter, r *http.Request, err error, title string) {
	var nse *store.NoSlotError
	switch {
	case errors.As(err, &nse):
		metrics.SlotConflicts.Inc()
		writeSlotConflict(w, r.URL.Path, nse.Availability)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotPending):
		writeProblem(w, http.StatusBadRequest, title, err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}

// AvailabilityHandler handles POST /v1/availability/check
func (s *Server) AvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateAvailabilityRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid availability request", err.Error(), r.URL.Path)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid availability request", err.Error(), r.URL.Path)
		return
	}
	if _, err := s.Store.GetRoute(r.Context(), req.RouteID); err != nil {
		s.storeProblem(w, r, err, "Availability check failed")
		return
	}
	avail, err := s.Ledger.Check(r.Context(), req.RouteID, req.Package, start)
	if err != nil {
		s.storeProblem(w, r, err, "Availability check failed")
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// RouteCapacityHandler handles GET /v1/routes/{id}/capacity
func (s *Server) RouteCapacityHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "capacity" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if _, err := s.Store.GetRoute(r.Context(), parts[0]); err != nil {
		s.storeProblem(w, r, err, "Capacity lookup failed")
		return
	}
	rc, err := s.Ledger.Capacity(r.Context(), parts[0], time.Now().UTC())
	if err != nil {
		s.storeProblem(w, r, err, "Capacity lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// CampaignsHandler handles POST /v1/campaigns
func (s *Server) CampaignsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if p.Role != "advertiser" && !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "advertiser role required", r.URL.Path)
		return
	}
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid campaign request", err.Error(), r.URL.Path)
		return
	}
	if err := validateCreateCampaignRequest(&req, start); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid campaign request", err.Error(), r.URL.Path)
		return
	}
	asset, err := s.Store.GetAsset(r.Context(), req.AssetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusBadRequest, "Invalid campaign request", "asset not found", r.URL.Path)
			return
		}
		s.storeProblem(w, r, err, "Create campaign failed")
		return
	}
	if !p.IsAdmin() && asset.OwnerID != p.UserID {
		writeProblem(w, http.StatusBadRequest, "Invalid campaign request", "asset does not belong to the requester", r.URL.Path)
		return
	}
	if !asset.Validated {
		writeProblem(w, http.StatusBadRequest, "Invalid campaign request", "asset has not passed validation", r.URL.Path)
		return
	}
	c, err := s.Store.ReserveCampaign(r.Context(), model.Campaign{
		AdvertiserID: p.UserID,
		RouteID:      req.RouteID,
		AssetID:      req.AssetID,
		Package:      req.Package,
		StartDate:    start,
	})
	if err != nil {
		s.storeProblem(w, r, err, "Create campaign failed")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// CampaignByIDHandler handles GET /v1/campaigns/mine and GET /v1/campaigns/{id}
func (s *Server) CampaignByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/campaigns/")
	if id == "mine" {
		items, err := s.Store.ListCampaignsByAdvertiser(r.Context(), p.UserID)
		if err != nil {
			s.storeProblem(w, r, err, "List campaigns failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	c, err := s.Store.GetCampaign(r.Context(), id)
	if err != nil {
		s.storeProblem(w, r, err, "Get campaign failed")
		return
	}
	if !p.IsAdmin() && c.AdvertiserID != p.UserID {
		writeProblem(w, http.StatusNotFound, "Not Found", "not found", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AdminCampaignsHandler handles GET /v1/admin/campaigns
func (s *Server) AdminCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = model.CampaignPending
	}
	page, limit := 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	items, total, err := s.Store.ListCampaignsByStatus(r.Context(), status, page, limit)
	if err != nil {
		s.storeProblem(w, r, err, "List campaigns failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "page": page, "limit": limit})
}

// AdminCampaignByIDHandler handles POST /v1/admin/campaigns/{id}/approve|reject
func (s *Server) AdminCampaignByIDHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/campaigns/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || r.Method != http.MethodPost {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "approve":
		var req struct {
			StartDate string `json:"startDate"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		var start time.Time
		if req.StartDate != "" {
			t, err := parseDate(req.StartDate)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid approve request", err.Error(), r.URL.Path)
				return
			}
			start = t
		} else {
			c, err := s.Store.GetCampaign(r.Context(), id)
			if err != nil {
				s.storeProblem(w, r, err, "Approve campaign failed")
				return
			}
			start = c.StartDate
		}
		c, err := s.Store.ApproveCampaign(r.Context(), id, start, p.UserID)
		if err != nil {
			s.storeProblem(w, r, err, "Approve campaign failed")
			return
		}
		s.Broker.Publish(events.TopicFleet, events.Event{Type: "campaign.approved", Data: map[string]any{
			"campaignId": c.ID, "routeId": c.RouteID, "truckId": c.TruckID,
			"startDate": c.StartDate, "endDate": c.EndDate,
		}})
		// Regenerate affected playlists in the background; approval has
		// already committed.
		go func(campaignID string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, _, err := s.Gen.RegenerateForCampaign(ctx, campaignID); err != nil {
				s.Log.WithError(err).WithField("campaignId", campaignID).Error("playlist regeneration after approval failed")
			}
		}(c.ID)
		writeJSON(w, http.StatusOK, c)
	case "reject":
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateRejectReason(req.Reason); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid reject request", err.Error(), r.URL.Path)
			return
		}
		c, err := s.Store.RejectCampaign(r.Context(), id, strings.TrimSpace(req.Reason), p.UserID)
		if err != nil {
			s.storeProblem(w, r, err, "Reject campaign failed")
			return
		}
		s.Broker.Publish(events.TopicFleet, events.Event{Type: "campaign.rejected", Data: map[string]any{
			"campaignId": c.ID, "routeId": c.RouteID, "reason": c.RejectionReason,
		}})
		writeJSON(w, http.StatusOK, c)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// AdminRouteCampaignsHandler handles DELETE /v1/admin/routes/{id}/campaigns
func (s *Server) AdminRouteCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/routes/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "campaigns" || r.Method != http.MethodDelete {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	var from, to *time.Time
	if v := r.URL.Query().Get("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid delete request", err.Error(), r.URL.Path)
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid delete request", err.Error(), r.URL.Path)
			return
		}
		to = &t
	}
	n, err := s.Store.DeleteCampaignsByRoute(r.Context(), parts[0], from, to)
	if err != nil {
		s.storeProblem(w, r, err, "Delete campaigns failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// AdminPlaylistsHandler handles /v1/admin/playlists/* actions:
// generate, generate-all, refresh-all, stats, {id}/push.
func (s *Server) AdminPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/playlists/")
	switch rest {
	case "generate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			TruckID string `json:"truckId"`
			Date    string `json:"date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if strings.TrimSpace(req.TruckID) == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid generate request", "truckId is required", r.URL.Path)
			return
		}
		date, err := optionalDate(req.Date)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid generate request", err.Error(), r.URL.Path)
			return
		}
		pl, err := s.Gen.GenerateForTruck(r.Context(), req.TruckID, date)
		if err != nil {
			s.storeProblem(w, r, err, "Generate playlist failed")
			return
		}
		writeJSON(w, http.StatusOK, pl)
	case "generate-all", "refresh-all":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Date string `json:"date"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		date, err := optionalDate(req.Date)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid refresh request", err.Error(), r.URL.Path)
			return
		}
		summary, results, err := s.Sched.TriggerRefresh(r.Context(), date)
		if err != nil {
			s.storeProblem(w, r, err, "Fleet refresh failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary, "results": results})
	case "stats":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		stats, err := s.Gen.Stats(r.Context())
		if err != nil {
			s.storeProblem(w, r, err, "Playlist stats failed")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	default:
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "push" && r.Method == http.MethodPost {
			pl, err := s.Store.MarkPlaylistPushed(r.Context(), parts[0])
			if err != nil {
				s.storeProblem(w, r, err, "Mark playlist pushed failed")
				return
			}
			writeJSON(w, http.StatusOK, pl)
			return
		}
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// AdminTrucksHandler handles GET /v1/admin/trucks
func (s *Server) AdminTrucksHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.Store.ListTrucks(r.Context())
	if err != nil {
		s.storeProblem(w, r, err, "List trucks failed")
		return
	}
	now := time.Now().UTC()
	for i := range items {
		items[i].Status = derivedStatus(items[i], now)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AdminTruckByIDHandler handles GET /v1/admin/trucks/{id}/status|playlist
func (s *Server) AdminTruckByIDHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/trucks/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch parts[1] {
	case "status":
		t, err := s.Store.GetTruck(r.Context(), parts[0])
		if err != nil {
			s.storeProblem(w, r, err, "Get truck failed")
			return
		}
		t.Status = derivedStatus(t, time.Now().UTC())
		writeJSON(w, http.StatusOK, t)
	case "playlist":
		date, err := optionalDate(r.URL.Query().Get("date"))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid playlist request", err.Error(), r.URL.Path)
			return
		}
		pl, err := s.Store.GetPlaylist(r.Context(), parts[0], date)
		if err != nil {
			s.storeProblem(w, r, err, "Get playlist failed")
			return
		}
		writeJSON(w, http.StatusOK, pl)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// SchedulerHandler handles GET /v1/admin/scheduler/status and
// POST /v1/admin/scheduler/refresh.
func (s *Server) SchedulerHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/scheduler/")
	switch {
	case rest == "status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.Sched.Status())
	case rest == "refresh" && r.Method == http.MethodPost:
		var req struct {
			Date string `json:"date"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		date, err := optionalDate(req.Date)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid refresh request", err.Error(), r.URL.Path)
			return
		}
		summary, results, err := s.Sched.TriggerRefresh(r.Context(), date)
		if err != nil {
			s.storeProblem(w, r, err, "Scheduler refresh failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary, "results": results})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// AdminDashboardHandler handles GET /v1/admin/dashboard
func (s *Server) AdminDashboardHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.Store.DashboardStats(r.Context(), time.Now().UTC())
	if err != nil {
		s.storeProblem(w, r, err, "Dashboard failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AdminCitiesHandler handles POST/GET /v1/admin/cities
func (s *Server) AdminCitiesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid city request", "name is required", r.URL.Path)
			return
		}
		city, err := s.Store.CreateCity(r.Context(), strings.TrimSpace(req.Name))
		if err != nil {
			s.storeProblem(w, r, err, "Create city failed")
			return
		}
		writeJSON(w, http.StatusCreated, city)
	case http.MethodGet:
		items, err := s.Store.ListCities(r.Context())
		if err != nil {
			s.storeProblem(w, r, err, "List cities failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AdminCityRoutesHandler handles POST/GET /v1/admin/cities/{id}/routes.
// Creating a route provisions its truck as well.
func (s *Server) AdminCityRoutesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !requireAdmin(w, r, p) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/cities/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "routes" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid route request", "name is required", r.URL.Path)
			return
		}
		route, truck, err := s.Store.CreateRoute(r.Context(), parts[0], strings.TrimSpace(req.Name), req.Description)
		if err != nil {
			s.storeProblem(w, r, err, "Create route failed")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"route": route, "truck": truck})
	case http.MethodGet:
		items, err := s.Store.ListRoutes(r.Context(), parts[0])
		if err != nil {
			s.storeProblem(w, r, err, "List routes failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HardwareHandler handles device-facing endpoints under /v1/hardware/{id}/:
// heartbeat (POST), playlist (GET), telemetry (GET).
func (s *Server) HardwareHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireHardwareKey(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/hardware/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	truckID := parts[0]
	if !s.hardwareAllow(truckID) {
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
		return
	}
	switch parts[1] {
	case "heartbeat":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var hb model.Heartbeat
		if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if hb.Status != model.TruckOnline && hb.Status != model.TruckOffline {
			writeProblem(w, http.StatusBadRequest, "Invalid heartbeat", "status must be online or offline", r.URL.Path)
			return
		}
		t, err := s.Store.RecordHeartbeat(r.Context(), truckID, hb)
		if err != nil {
			s.storeProblem(w, r, err, "Heartbeat failed")
			return
		}
		s.Broker.Publish(events.TopicFleet, events.Event{Type: "truck.heartbeat", Data: map[string]any{
			"truckId": t.ID, "status": t.Status, "uptimeSeconds": t.UptimeSeconds,
		}})
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "status": t.Status})
	case "playlist":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		// Devices always receive the current UTC day.
		now := time.Now().UTC()
		pl, err := s.Store.GetPlaylist(r.Context(), truckID, model.DayUTC(now))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{"timestamp": now, "version": "v0", "playlist": []model.PlaylistItem{}})
				return
			}
			s.storeProblem(w, r, err, "Get playlist failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"timestamp": now, "version": pl.Version, "playlist": pl.Items})
	case "telemetry":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t, err := s.Store.GetTruck(r.Context(), truckID)
		if err != nil {
			s.storeProblem(w, r, err, "Telemetry failed")
			return
		}
		t.Status = derivedStatus(t, time.Now().UTC())
		writeJSON(w, http.StatusOK, t)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadyHandler handles GET /readyz. Pings the store when it supports it.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// derivedStatus overrides a truck's reported status to offline when its last
// heartbeat is older than the staleness window. Maintenance wins.
func derivedStatus(t model.Truck, now time.Time) string {
	if t.Status == model.TruckMaintenance {
		return t.Status
	}
	if t.LastHeartbeatAt == nil || now.Sub(*t.LastHeartbeatAt) > heartbeatStale {
		return model.TruckOffline
	}
	return t.Status
}

// optionalDate parses s or defaults to today's UTC calendar day.
func optionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return model.DayUTC(time.Now().UTC()), nil
	}
	t, err := parseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return model.DayUTC(t), nil
}
