package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetads/internal/metrics"
)

// Routes builds the service mux. The caller wraps it with Instrument.
func (s *Server) Routes() *http.ServeMux {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Availability & capacity
	mux.HandleFunc("/v1/availability/check", s.AvailabilityHandler)
	mux.HandleFunc("/v1/routes/", s.RouteCapacityHandler)

	// Campaigns
	mux.HandleFunc("/v1/campaigns", s.CampaignsHandler)
	mux.HandleFunc("/v1/campaigns/", s.CampaignByIDHandler)
	mux.HandleFunc("/v1/admin/campaigns", s.AdminCampaignsHandler)
	mux.HandleFunc("/v1/admin/campaigns/", s.AdminCampaignByIDHandler)
	mux.HandleFunc("/v1/admin/routes/", s.AdminRouteCampaignsHandler)

	// Playlists
	mux.HandleFunc("/v1/admin/playlists/", s.AdminPlaylistsHandler)

	// Fleet
	mux.HandleFunc("/v1/admin/trucks", s.AdminTrucksHandler)
	mux.HandleFunc("/v1/admin/trucks/", s.AdminTruckByIDHandler)
	mux.HandleFunc("/v1/admin/fleet/ws", s.FleetWSHandler)

	// Scheduler & dashboard
	mux.HandleFunc("/v1/admin/scheduler/", s.SchedulerHandler)
	mux.HandleFunc("/v1/admin/dashboard", s.AdminDashboardHandler)

	// Provisioning
	mux.HandleFunc("/v1/admin/cities", s.AdminCitiesHandler)
	mux.HandleFunc("/v1/admin/cities/", s.AdminCityRoutesHandler)

	// Hardware
	mux.HandleFunc("/v1/hardware/", s.HardwareHandler)

	// Health & metrics
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return mux
}
