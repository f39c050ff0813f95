// Package playlist compiles approved campaigns into versioned per-truck daily
// media manifests.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fleetads/internal/events"
	"fleetads/internal/metrics"
	"fleetads/internal/model"
	"fleetads/internal/store"
)

// ChecksumSentinel is recorded when a media asset carries no checksum.
const ChecksumSentinel = "no-checksum"

// Generator derives playlists from the current campaign state. Generation is
// idempotent: rerunning for the same (truck, date) replaces the manifest
// wholesale under a fresh version tag.
type Generator struct {
	Store  store.Store
	Broker events.Broker // optional
	Log    *logrus.Logger
}

func New(s store.Store, b events.Broker, log *logrus.Logger) *Generator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Generator{Store: s, Broker: b, Log: log}
}

// Result is the outcome of one (truck, date) generation.
type Result struct {
	TruckID   string    `json:"truckId"`
	Date      time.Time `json:"date"`
	Success   bool      `json:"success"`
	Version   string    `json:"version,omitempty"`
	ItemCount int       `json:"itemCount"`
	Error     string    `json:"error,omitempty"`
}

// Summary aggregates a batch of generations.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Version tags are wall-clock derived; they guarantee change detection
// between successive generations, not lexical ordering.
func newVersion(empty bool) string {
	if empty {
		return fmt.Sprintf("v%d_empty", time.Now().UnixNano())
	}
	return fmt.Sprintf("v%d", time.Now().UnixNano())
}

// GenerateForTruck compiles the manifest for one truck and calendar date.
func (g *Generator) GenerateForTruck(ctx context.Context, truckID string, date time.Time) (model.Playlist, error) {
	date = model.DayUTC(date)
	if _, err := g.Store.GetTruck(ctx, truckID); err != nil {
		return model.Playlist{}, fmt.Errorf("truck %s: %w", truckID, err)
	}
	campaigns, err := g.Store.ListCampaignsForTruckOnDate(ctx, truckID, date)
	if err != nil {
		metrics.PlaylistGenerations.WithLabelValues("error").Inc()
		return model.Playlist{}, fmt.Errorf("list campaigns for truck %s: %w", truckID, err)
	}

	items := make([]model.PlaylistItem, 0, len(campaigns))
	for _, c := range campaigns {
		asset, err := g.Store.GetAsset(ctx, c.AssetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				metrics.PlaylistGenerations.WithLabelValues("error").Inc()
				return model.Playlist{}, fmt.Errorf("campaign %s has no asset", c.ID)
			}
			metrics.PlaylistGenerations.WithLabelValues("error").Inc()
			return model.Playlist{}, fmt.Errorf("load asset %s: %w", c.AssetID, err)
		}
		checksum := asset.Checksum
		if checksum == "" {
			checksum = ChecksumSentinel
		}
		items = append(items, model.PlaylistItem{
			ID:       asset.ID,
			Type:     "video",
			URL:      asset.URL,
			Checksum: checksum,
			Duration: asset.DurationSec,
			Loop:     false,
		})
	}

	pl := model.Playlist{
		TruckID:    truckID,
		Date:       date,
		Version:    newVersion(len(items) == 0),
		Items:      items,
		PushStatus: model.PushPending,
		IsActive:   true,
	}
	pl, err = g.Store.UpsertPlaylist(ctx, pl)
	if err != nil {
		metrics.PlaylistGenerations.WithLabelValues("error").Inc()
		return model.Playlist{}, fmt.Errorf("upsert playlist: %w", err)
	}
	metrics.PlaylistGenerations.WithLabelValues("ok").Inc()
	g.Log.WithFields(logrus.Fields{
		"truckId": truckID,
		"date":    date.Format("2006-01-02"),
		"version": pl.Version,
		"items":   len(pl.Items),
	}).Info("playlist generated")
	g.publish(truckID, events.Event{Type: "playlist.generated", Data: map[string]any{
		"truckId": truckID,
		"date":    date.Format("2006-01-02"),
		"version": pl.Version,
		"items":   len(pl.Items),
	}})
	return pl, nil
}

// GenerateForAllTrucks runs the single-truck generator across the fleet,
// continuing past individual failures.
func (g *Generator) GenerateForAllTrucks(ctx context.Context, date time.Time) (Summary, []Result, error) {
	trucks, err := g.Store.ListTrucks(ctx)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("list trucks: %w", err)
	}
	results := make([]Result, 0, len(trucks))
	sum := Summary{Total: len(trucks)}
	for _, t := range trucks {
		res := Result{TruckID: t.ID, Date: model.DayUTC(date)}
		pl, err := g.GenerateForTruck(ctx, t.ID, date)
		if err != nil {
			res.Error = err.Error()
			sum.Failed++
			g.Log.WithFields(logrus.Fields{"truckId": t.ID, "date": model.DayUTC(date).Format("2006-01-02")}).
				WithError(err).Warn("playlist generation failed")
		} else {
			res.Success = true
			res.Version = pl.Version
			res.ItemCount = len(pl.Items)
			sum.Successful++
		}
		results = append(results, res)
	}
	return sum, results, nil
}

// RegenerateForCampaign regenerates the manifest for every calendar day in
// the campaign's range on its truck. Used as the approval side effect.
func (g *Generator) RegenerateForCampaign(ctx context.Context, campaignID string) (Summary, []Result, error) {
	c, err := g.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("campaign %s: %w", campaignID, err)
	}
	if c.TruckID == "" {
		return Summary{}, nil, fmt.Errorf("campaign %s has no truck", campaignID)
	}
	var results []Result
	var sum Summary
	for day := model.DayUTC(c.StartDate); !day.After(model.DayUTC(c.EndDate)); day = day.AddDate(0, 0, 1) {
		res := Result{TruckID: c.TruckID, Date: day}
		pl, err := g.GenerateForTruck(ctx, c.TruckID, day)
		if err != nil {
			res.Error = err.Error()
			sum.Failed++
		} else {
			res.Success = true
			res.Version = pl.Version
			res.ItemCount = len(pl.Items)
			sum.Successful++
		}
		sum.Total++
		results = append(results, res)
	}
	g.Log.WithFields(logrus.Fields{"campaignId": campaignID, "days": sum.Total, "failed": sum.Failed}).
		Info("campaign playlists regenerated")
	return sum, results, nil
}

// Stats exposes playlist counters for monitoring.
func (g *Generator) Stats(ctx context.Context) (model.PlaylistStats, error) {
	return g.Store.PlaylistStats(ctx)
}

func (g *Generator) publish(truckID string, evt events.Event) {
	if g.Broker == nil {
		return
	}
	g.Broker.Publish(truckID, evt)
	g.Broker.Publish(events.TopicFleet, evt)
}
