package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetads/internal/model"
	"fleetads/internal/slots"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

// seedRouteAndAsset provisions one city/route/truck and a validated asset.
func seedRouteAndAsset(t *testing.T, m *Memory) (model.Route, model.Asset) {
	t.Helper()
	ctx := context.Background()
	city, err := m.CreateCity(ctx, "Karachi")
	if err != nil {
		t.Fatalf("CreateCity: %v", err)
	}
	route, _, err := m.CreateRoute(ctx, city.ID, "Clifton Loop", "")
	if err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	asset, err := m.CreateAsset(ctx, model.Asset{OwnerID: "adv1", URL: "https://cdn.test/a.mp4", DurationSec: 30, Validated: true})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return route, asset
}

func reserve(t *testing.T, m *Memory, routeID, assetID, pkg, start string) model.Campaign {
	t.Helper()
	c, err := m.ReserveCampaign(context.Background(), model.Campaign{
		AdvertiserID: "adv1", RouteID: routeID, AssetID: assetID, Package: pkg, StartDate: day(start),
	})
	if err != nil {
		t.Fatalf("ReserveCampaign: %v", err)
	}
	return c
}

func TestReserveComputesWindow(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	c := reserve(t, m, route.ID, asset.ID, "15", "2024-01-01")
	if c.Status != model.CampaignPending {
		t.Fatalf("status: got %s", c.Status)
	}
	if !c.EndDate.Equal(day("2024-01-15")) {
		t.Fatalf("endDate: got %s", c.EndDate.Format("2006-01-02"))
	}
	if c.TruckID != route.TruckID {
		t.Fatalf("truck: got %q, want %q", c.TruckID, route.TruckID)
	}
}

func TestReserveFullRoute(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	ctx := context.Background()
	for i := 0; i < slots.TotalSlots; i++ {
		c := reserve(t, m, route.ID, asset.ID, "30", "2024-02-01")
		if _, err := m.ApproveCampaign(ctx, c.ID, c.StartDate, "admin1"); err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
	}
	_, err := m.ReserveCampaign(ctx, model.Campaign{
		AdvertiserID: "adv1", RouteID: route.ID, AssetID: asset.ID, Package: "30", StartDate: day("2024-02-01"),
	})
	var nse *NoSlotError
	if !errors.As(err, &nse) {
		t.Fatalf("want NoSlotError, got %v", err)
	}
	// All seven end 2024-03-01, so the next opening is the day after.
	if want := day("2024-03-02"); !nse.Availability.EarliestStartDate.Equal(want) {
		t.Fatalf("earliest: got %s, want %s", nse.Availability.EarliestStartDate, want)
	}
	if len(nse.Availability.ConflictingCampaigns) != slots.TotalSlots {
		t.Fatalf("conflicts: got %d", len(nse.Availability.ConflictingCampaigns))
	}
}

// Concurrent approvals racing for the last slot must not overshoot capacity.
func TestApproveRaceHoldsInvariant(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	ctx := context.Background()
	for i := 0; i < slots.TotalSlots-1; i++ {
		c := reserve(t, m, route.ID, asset.ID, "30", "2024-02-01")
		if _, err := m.ApproveCampaign(ctx, c.ID, c.StartDate, "admin1"); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	// Ten pending campaigns race for the single remaining slot.
	pending := make([]model.Campaign, 10)
	for i := range pending {
		pending[i] = reserve(t, m, route.ID, asset.ID, "30", "2024-02-01")
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for _, c := range pending {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := m.ApproveCampaign(ctx, id, day("2024-02-01"), "admin1"); err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}(c.ID)
	}
	wg.Wait()
	if approved != 1 {
		t.Fatalf("exactly one approval should win, got %d", approved)
	}
	active, err := m.ListActiveCampaigns(ctx, route.ID, day("2024-02-01"))
	if err != nil {
		t.Fatalf("ListActiveCampaigns: %v", err)
	}
	if len(active) != slots.TotalSlots {
		t.Fatalf("active: got %d, want %d", len(active), slots.TotalSlots)
	}
}

func TestRejectRequiresPending(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	ctx := context.Background()
	c := reserve(t, m, route.ID, asset.ID, "7", "2024-03-01")
	if _, err := m.RejectCampaign(ctx, c.ID, "creative does not meet the content policy", "admin1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := m.RejectCampaign(ctx, c.ID, "creative does not meet the content policy", "admin1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second reject: want ErrNotPending, got %v", err)
	}
	if _, err := m.ApproveCampaign(ctx, c.ID, c.StartDate, "admin1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("approve rejected: want ErrNotPending, got %v", err)
	}
	if _, err := m.RejectCampaign(ctx, "missing", "creative does not meet the content policy", "admin1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reject missing: want ErrNotFound, got %v", err)
	}
}

func TestSweepCampaignStatuses(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	ctx := context.Background()
	past := reserve(t, m, route.ID, asset.ID, "7", "2024-01-01")
	cur := reserve(t, m, route.ID, asset.ID, "30", "2024-01-15")
	fut := reserve(t, m, route.ID, asset.ID, "7", "2024-02-15")
	for _, c := range []model.Campaign{past, cur, fut} {
		if _, err := m.ApproveCampaign(ctx, c.ID, c.StartDate, "admin1"); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	live, expired, err := m.SweepCampaignStatuses(ctx, day("2024-01-20"))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if live != 1 || expired != 1 {
		t.Fatalf("sweep: got live=%d expired=%d", live, expired)
	}
	if c, _ := m.GetCampaign(ctx, past.ID); c.Status != model.CampaignExpired {
		t.Fatalf("past: got %s", c.Status)
	}
	if c, _ := m.GetCampaign(ctx, cur.ID); c.Status != model.CampaignLive {
		t.Fatalf("current: got %s", c.Status)
	}
	if c, _ := m.GetCampaign(ctx, fut.ID); c.Status != model.CampaignApproved {
		t.Fatalf("future: got %s", c.Status)
	}
	// Idempotent on rerun.
	live, expired, err = m.SweepCampaignStatuses(ctx, day("2024-01-20"))
	if err != nil || live != 0 || expired != 0 {
		t.Fatalf("second sweep: live=%d expired=%d err=%v", live, expired, err)
	}
}

func TestDeleteCampaignsByRouteWindow(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	ctx := context.Background()
	reserve(t, m, route.ID, asset.ID, "7", "2024-01-01")
	reserve(t, m, route.ID, asset.ID, "7", "2024-02-01")
	reserve(t, m, route.ID, asset.ID, "7", "2024-03-01")
	from, to := day("2024-01-15"), day("2024-02-15")
	n, err := m.DeleteCampaignsByRoute(ctx, route.ID, &from, &to)
	if err != nil || n != 1 {
		t.Fatalf("windowed delete: n=%d err=%v", n, err)
	}
	n, err = m.DeleteCampaignsByRoute(ctx, route.ID, nil, nil)
	if err != nil || n != 2 {
		t.Fatalf("full delete: n=%d err=%v", n, err)
	}
}

func TestUpsertPlaylistReplaces(t *testing.T) {
	m := NewMemory()
	route, _ := seedRouteAndAsset(t, m)
	ctx := context.Background()
	d := day("2024-01-01")
	p1, err := m.UpsertPlaylist(ctx, model.Playlist{
		TruckID: route.TruckID, Date: d, Version: "v1",
		Items:      []model.PlaylistItem{{ID: "a1", Type: "video"}},
		PushStatus: model.PushPending, IsActive: true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p2, err := m.UpsertPlaylist(ctx, model.Playlist{
		TruckID: route.TruckID, Date: d, Version: "v2",
		Items:      []model.PlaylistItem{{ID: "a2", Type: "video"}, {ID: "a3", Type: "video"}},
		PushStatus: model.PushPending, IsActive: true,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("replacement must keep the playlist id: %s vs %s", p2.ID, p1.ID)
	}
	got, err := m.GetPlaylist(ctx, route.TruckID, d)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != "v2" || len(got.Items) != 2 {
		t.Fatalf("replacement not wholesale: version=%s items=%d", got.Version, len(got.Items))
	}
	pushed, err := m.MarkPlaylistPushed(ctx, p2.ID)
	if err != nil || pushed.PushStatus != model.PushPushed || pushed.PushedAt == nil {
		t.Fatalf("push: %+v err=%v", pushed, err)
	}
}

func TestListCampaignsForTruckOnDateOrder(t *testing.T) {
	m := NewMemory()
	route, asset := seedRouteAndAsset(t, m)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		c := reserve(t, m, route.ID, asset.ID, "30", "2024-02-01")
		if _, err := m.ApproveCampaign(ctx, c.ID, c.StartDate, "admin1"); err != nil {
			t.Fatalf("approve: %v", err)
		}
		ids = append(ids, c.ID)
		time.Sleep(time.Millisecond)
	}
	got, err := m.ListCampaignsForTruckOnDate(ctx, route.TruckID, day("2024-02-10"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("list: got %d", len(got))
	}
	for i := range ids {
		if got[i].ID != ids[i] {
			t.Fatalf("order: position %d got %s want %s", i, got[i].ID, ids[i])
		}
	}
	// Outside the window.
	if got, _ := m.ListCampaignsForTruckOnDate(ctx, route.TruckID, day("2024-04-01")); len(got) != 0 {
		t.Fatalf("outside window: got %d", len(got))
	}
}

func TestHeartbeatUpdatesTruck(t *testing.T) {
	m := NewMemory()
	route, _ := seedRouteAndAsset(t, m)
	ctx := context.Background()
	tr, err := m.RecordHeartbeat(ctx, route.TruckID, model.Heartbeat{Status: model.TruckOnline, UptimeSeconds: 3600})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if tr.Status != model.TruckOnline || tr.LastHeartbeatAt == nil || tr.UptimeSeconds != 3600 {
		t.Fatalf("truck not updated: %+v", tr)
	}
	if _, err := m.RecordHeartbeat(ctx, "missing", model.Heartbeat{Status: model.TruckOnline}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing truck: want ErrNotFound, got %v", err)
	}
}
