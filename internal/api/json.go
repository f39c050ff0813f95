package api

import (
	"encoding/json"
	"net/http"
	"time"

	"fleetads/internal/model"
)

// Problem is an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// slotConflict extends Problem with the ledger diagnostics a caller needs to
// retry a booking: the earliest free start day and the campaigns in the way.
type slotConflict struct {
	Problem
	EarliestStartDate    time.Time        `json:"earliestStartDate"`
	ConflictingCampaigns []model.Campaign `json:"conflictingCampaigns"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func writeSlotConflict(w http.ResponseWriter, instance string, avail model.Availability) {
	writeJSON(w, http.StatusConflict, slotConflict{
		Problem: Problem{
			Type:     "about:blank",
			Title:    "No slots available",
			Status:   http.StatusConflict,
			Detail:   "all slots on this route are taken for the requested window",
			Instance: instance,
		},
		EarliestStartDate:    avail.EarliestStartDate,
		ConflictingCampaigns: avail.ConflictingCampaigns,
	})
}
