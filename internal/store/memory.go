package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetads/internal/model"
	"fleetads/internal/slots"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set. The
// single mutex doubles as the reservation lock: the capacity check and the
// campaign insert happen under it, so the availability-then-create race is
// closed by construction.
type Memory struct {
	mu        sync.Mutex
	cities    map[string]model.City
	routes    map[string]model.Route
	trucks    map[string]model.Truck
	assets    map[string]model.Asset
	campaigns map[string]model.Campaign
	playlists map[string]model.Playlist // composite key truckID|date
	plByID    map[string]string         // playlist id -> composite key
}

func NewMemory() *Memory {
	return &Memory{
		cities:    map[string]model.City{},
		routes:    map[string]model.Route{},
		trucks:    map[string]model.Truck{},
		assets:    map[string]model.Asset{},
		campaigns: map[string]model.Campaign{},
		playlists: map[string]model.Playlist{},
		plByID:    map[string]string{},
	}
}

func plKey(truckID string, date time.Time) string {
	return truckID + "|" + model.DayUTC(date).Format("2006-01-02")
}

func (m *Memory) CreateCity(ctx context.Context, name string) (model.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.City{ID: uuid.New().String(), Name: name, IsActive: true, CreatedAt: time.Now().UTC()}
	m.cities[c.ID] = c
	return c, nil
}

func (m *Memory) ListCities(ctx context.Context) ([]model.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.City, 0, len(m.cities))
	for _, c := range m.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context, cityID string) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Route{}
	for _, r := range m.routes {
		if cityID == "" || r.CityID == cityID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateRoute(ctx context.Context, cityID, name, description string) (model.Route, model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cities[cityID]; !ok {
		return model.Route{}, model.Truck{}, ErrNotFound
	}
	t := model.Truck{
		ID:           uuid.New().String(),
		ControllerID: fmt.Sprintf("TRUCK_%d", time.Now().UnixNano()),
		Status:       model.TruckOffline,
		IsActive:     true,
	}
	r := model.Route{
		ID:          uuid.New().String(),
		CityID:      cityID,
		Name:        name,
		Description: description,
		TruckID:     t.ID,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	t.RouteID = r.ID
	m.routes[r.ID] = r
	m.trucks[t.ID] = t
	return r, t, nil
}

func (m *Memory) GetTruck(ctx context.Context, id string) (model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trucks[id]
	if !ok {
		return model.Truck{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Truck, 0, len(m.trucks))
	for _, t := range m.trucks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ControllerID < out[j].ControllerID })
	return out, nil
}

func (m *Memory) RecordHeartbeat(ctx context.Context, truckID string, hb model.Heartbeat) (model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trucks[truckID]
	if !ok {
		return model.Truck{}, ErrNotFound
	}
	now := time.Now().UTC()
	t.Status = hb.Status
	t.LastHeartbeatAt = &now
	t.UptimeSeconds = hb.UptimeSeconds
	if hb.LastAdPlaybackAt != nil {
		t.LastAdPlaybackAt = hb.LastAdPlaybackAt
	}
	if hb.GPS != nil {
		t.GPS = hb.GPS
	}
	m.trucks[truckID] = t
	return t, nil
}

func (m *Memory) CreateAsset(ctx context.Context, a model.Asset) (model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	m.assets[a.ID] = a
	return a, nil
}

func (m *Memory) GetAsset(ctx context.Context, id string) (model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return model.Asset{}, ErrNotFound
	}
	return a, nil
}

// overlapping collects campaigns on routeID whose inclusive range intersects
// [from, to] with a status in statuses, sorted by ascending end date. Caller
// must hold m.mu.
func (m *Memory) overlapping(routeID string, from, to time.Time, statuses []string) []model.Campaign {
	want := map[string]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	out := []model.Campaign{}
	for _, c := range m.campaigns {
		if c.RouteID != routeID || !want[c.Status] {
			continue
		}
		if !c.StartDate.After(to) && !c.EndDate.Before(from) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EndDate.Before(out[j].EndDate)
	})
	return out
}

func (m *Memory) ListCampaignsOverlapping(ctx context.Context, routeID string, from, to time.Time, statuses []string) ([]model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapping(routeID, from, to, statuses), nil
}

func (m *Memory) ListActiveCampaigns(ctx context.Context, routeID string, asOf time.Time) ([]model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Campaign{}
	for _, c := range m.campaigns {
		if c.RouteID != routeID {
			continue
		}
		if (c.Status == model.CampaignApproved || c.Status == model.CampaignLive) && !c.EndDate.Before(asOf) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (m *Memory) ReserveCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := slots.PackageDays(c.Package)
	if !ok {
		return model.Campaign{}, fmt.Errorf("unknown package %q", c.Package)
	}
	rt, ok := m.routes[c.RouteID]
	if !ok {
		return model.Campaign{}, ErrNotFound
	}
	c.TruckID = rt.TruckID
	c.StartDate = model.DayUTC(c.StartDate)
	avail := slots.Evaluate(c.StartDate, m.overlapping(c.RouteID, c.StartDate, slots.ScanEnd(c.StartDate, days), slots.ActiveStatuses))
	if !avail.Available {
		return model.Campaign{}, &NoSlotError{Availability: avail}
	}
	c.ID = uuid.New().String()
	c.EndDate = slots.EndDate(c.StartDate, days)
	c.Status = model.CampaignPending
	c.PaymentStatus = model.PaymentPending
	c.CreatedAt = time.Now().UTC()
	m.campaigns[c.ID] = c
	return c, nil
}

func (m *Memory) GetCampaign(ctx context.Context, id string) (model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return model.Campaign{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListCampaignsByAdvertiser(ctx context.Context, advertiserID string) ([]model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Campaign{}
	for _, c := range m.campaigns {
		if c.AdvertiserID == advertiserID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListCampaignsByStatus(ctx context.Context, status string, page, limit int) ([]model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []model.Campaign{}
	for _, c := range m.campaigns {
		if status == "" || c.Status == status {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []model.Campaign{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return append([]model.Campaign(nil), all[start:end]...), total, nil
}

func (m *Memory) ApproveCampaign(ctx context.Context, id string, startDate time.Time, approver string) (model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return model.Campaign{}, ErrNotFound
	}
	if c.Status != model.CampaignPending {
		return model.Campaign{}, ErrNotPending
	}
	days, ok := slots.PackageDays(c.Package)
	if !ok {
		return model.Campaign{}, fmt.Errorf("unknown package %q", c.Package)
	}
	startDate = model.DayUTC(startDate)
	avail := slots.Evaluate(startDate, m.overlapping(c.RouteID, startDate, slots.ScanEnd(startDate, days), slots.ActiveStatuses))
	if !avail.Available {
		return model.Campaign{}, &NoSlotError{Availability: avail}
	}
	now := time.Now().UTC()
	c.Status = model.CampaignApproved
	c.StartDate = startDate
	c.EndDate = slots.EndDate(startDate, days)
	c.ApprovedBy = approver
	c.ApprovedAt = &now
	m.campaigns[id] = c
	return c, nil
}

func (m *Memory) RejectCampaign(ctx context.Context, id, reason, approver string) (model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return model.Campaign{}, ErrNotFound
	}
	if c.Status != model.CampaignPending {
		return model.Campaign{}, ErrNotPending
	}
	now := time.Now().UTC()
	c.Status = model.CampaignRejected
	c.RejectionReason = reason
	c.ApprovedBy = approver
	c.ApprovedAt = &now
	m.campaigns[id] = c
	return c, nil
}

func (m *Memory) DeleteCampaignsByRoute(ctx context.Context, routeID string, from, to *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, c := range m.campaigns {
		if c.RouteID != routeID {
			continue
		}
		if from != nil && c.StartDate.Before(model.DayUTC(*from)) {
			continue
		}
		if to != nil && c.StartDate.After(model.DayUTC(*to)) {
			continue
		}
		delete(m.campaigns, id)
		deleted++
	}
	return deleted, nil
}

func (m *Memory) SweepCampaignStatuses(ctx context.Context, now time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := model.DayUTC(now)
	live, expired := 0, 0
	for id, c := range m.campaigns {
		switch c.Status {
		case model.CampaignApproved, model.CampaignLive:
			if c.EndDate.Before(today) {
				c.Status = model.CampaignExpired
				m.campaigns[id] = c
				expired++
			} else if c.Status == model.CampaignApproved && !c.StartDate.After(today) {
				c.Status = model.CampaignLive
				m.campaigns[id] = c
				live++
			}
		}
	}
	return live, expired, nil
}

func (m *Memory) ListCampaignsForTruckOnDate(ctx context.Context, truckID string, date time.Time) ([]model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := model.DayUTC(date)
	out := []model.Campaign{}
	for _, c := range m.campaigns {
		if c.TruckID != truckID {
			continue
		}
		if c.Status != model.CampaignApproved && c.Status != model.CampaignLive {
			continue
		}
		if !c.StartDate.After(day) && !c.EndDate.Before(day) {
			out = append(out, c)
		}
	}
	// Deterministic manifest order: campaign creation time, id as tie-break.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpsertPlaylist(ctx context.Context, p model.Playlist) (model.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Date = model.DayUTC(p.Date)
	key := plKey(p.TruckID, p.Date)
	if prev, ok := m.playlists[key]; ok {
		p.ID = prev.ID
	} else {
		p.ID = uuid.New().String()
	}
	p.UpdatedAt = time.Now().UTC()
	m.playlists[key] = p
	m.plByID[p.ID] = key
	return p, nil
}

func (m *Memory) GetPlaylist(ctx context.Context, truckID string, date time.Time) (model.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.playlists[plKey(truckID, date)]
	if !ok {
		return model.Playlist{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetPlaylistByID(ctx context.Context, id string) (model.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.plByID[id]
	if !ok {
		return model.Playlist{}, ErrNotFound
	}
	return m.playlists[key], nil
}

func (m *Memory) MarkPlaylistPushed(ctx context.Context, id string) (model.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.plByID[id]
	if !ok {
		return model.Playlist{}, ErrNotFound
	}
	p := m.playlists[key]
	now := time.Now().UTC()
	p.PushStatus = model.PushPushed
	p.PushedAt = &now
	p.UpdatedAt = now
	m.playlists[key] = p
	return p, nil
}

func (m *Memory) PlaylistStats(ctx context.Context) (model.PlaylistStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := model.PlaylistStats{ByStatus: map[string]int{}}
	for _, p := range m.playlists {
		st.Total++
		if p.IsActive {
			st.Active++
		}
		if p.PushStatus == model.PushPending {
			st.Pending++
		}
		st.ByStatus[p.PushStatus]++
	}
	return st, nil
}

func (m *Memory) DashboardStats(ctx context.Context, now time.Time) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := model.DayUTC(now)
	tomorrow := today.AddDate(0, 0, 1)
	var total, pending, active, expiring int
	for _, c := range m.campaigns {
		total++
		switch c.Status {
		case model.CampaignPending:
			pending++
		case model.CampaignApproved, model.CampaignLive:
			active++
			if !c.EndDate.Before(today) && !c.EndDate.After(tomorrow) {
				expiring++
			}
		}
	}
	var online int
	for _, t := range m.trucks {
		if t.Status == model.TruckOnline {
			online++
		}
	}
	return map[string]any{
		"campaigns": map[string]int{"total": total, "pending": pending, "active": active, "expiring": expiring},
		"trucks":    map[string]int{"total": len(m.trucks), "online": online, "offline": len(m.trucks) - online},
		"assets":    map[string]int{"total": len(m.assets)},
		"playlists": map[string]int{"total": len(m.playlists)},
	}, nil
}

// compile-time interface check
var _ Store = (*Memory)(nil)
