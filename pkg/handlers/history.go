// Endpoints exposing the history of saved covers.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"Cover-Art-Go/pkg/db"
)

// HistoryJSON returns the most recently saved covers. The 'limit' query
// parameter defaults to 50.
func (app *Application) HistoryJSON(w http.ResponseWriter, r *http.Request) {
	if app.History == nil {
		respondJSONError(w, http.StatusInternalServerError, "db not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	res, err := app.History.ListDownloads(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("list downloads")
		respondJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if res == nil {
		res = []db.Download{}
	}
	respondJSON(w, http.StatusOK, res)
}

// HistoryServicesJSON counts saved covers per service for a period controlled
// by the 'days' query parameter.
func (app *Application) HistoryServicesJSON(w http.ResponseWriter, r *http.Request) {
	if app.History == nil {
		respondJSONError(w, http.StatusInternalServerError, "db not configured")
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	res, err := app.History.TopServicesSince(r.Context(), since)
	if err != nil {
		log.WithError(err).Error("top services")
		respondJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if res == nil {
		res = []db.ServiceCount{}
	}
	respondJSON(w, http.StatusOK, res)
}
