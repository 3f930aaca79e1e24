// This file holds the Application type, its routes and the endpoints that
// drive a search session.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/db"
	"Cover-Art-Go/pkg/save"
)

var log = logrus.WithField("component", "http")

// Saver stores a chosen cover.
type Saver interface {
	Save(ctx context.Context, img *cover.ImageResult, opts save.Options) (*save.Result, error)
}

// History lists saved covers.
type History interface {
	ListDownloads(ctx context.Context, limit int) ([]db.Download, error)
	TopServicesSince(ctx context.Context, since time.Time) ([]db.ServiceCount, error)
}

// Application bundles the dependencies used by the HTTP handlers.
type Application struct {
	Orchestrator *cover.Orchestrator
	Saver        Saver
	History      History
	// Defaults are applied to searches that leave the matching fields unset.
	Defaults  cover.Options
	OutputDir string
}

// Routes registers every endpoint on a new router. Metrics and static files
// are added by the caller.
func (app *Application) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(RequireCSRF)
	api.HandleFunc("/csrf", app.CSRFToken).Methods(http.MethodGet)
	api.HandleFunc("/services", app.Services).Methods(http.MethodGet)
	api.HandleFunc("/search", app.StartSearch).Methods(http.MethodPost)
	api.HandleFunc("/search", app.GetSearch).Methods(http.MethodGet)
	api.HandleFunc("/search/cancel", app.CancelSearch).Methods(http.MethodPost)
	api.HandleFunc("/candidates/select", app.SelectCandidate).Methods(http.MethodPost)
	api.HandleFunc("/images/select", app.SelectImage).Methods(http.MethodPost)
	api.HandleFunc("/services/{service}/more", app.RequestMore).Methods(http.MethodPost)
	api.HandleFunc("/save", app.Save).Methods(http.MethodPost)
	api.HandleFunc("/history", app.HistoryJSON).Methods(http.MethodGet)
	api.HandleFunc("/history/services", app.HistoryServicesJSON).Methods(http.MethodGet)
	api.HandleFunc("/events", app.Events).Methods(http.MethodGet)
	return r
}

// Services lists the registered service names.
func (app *Application) Services(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"services": app.Orchestrator.Registry().Names()})
}

type searchRequest struct {
	Artist    string   `json:"artist"`
	Album     string   `json:"album"`
	Services  []string `json:"services"`
	MinWidth  int      `json:"min_width"`
	MinHeight int      `json:"min_height"`
	FrontOnly *bool    `json:"front_only"`
	BatchSize int      `json:"batch_size"`
	Browse    bool     `json:"browse"`
}

func (app *Application) options(req searchRequest) cover.Options {
	opts := app.Defaults
	if len(req.Services) > 0 {
		opts.Services = req.Services
	}
	if req.FrontOnly != nil {
		opts.FrontOnly = *req.FrontOnly
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	opts.MinWidth, opts.MinHeight = req.MinWidth, req.MinHeight
	opts.Browse = req.Browse
	return opts
}

// StartSearch cancels the running session and starts a new one. It responds
// with the initial snapshot; results arrive through GET /api/search or the
// event stream.
func (app *Application) StartSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MinWidth < 0 || req.MinHeight < 0 || req.BatchSize < 0 || req.BatchSize > 50 {
		respondJSONError(w, http.StatusBadRequest, "min_width, min_height and batch_size must be in range")
		return
	}
	s, err := app.Orchestrator.StartSearch(cover.SearchQuery{Artist: req.Artist, Album: req.Album}, app.options(req))
	if err != nil {
		var inErr *cover.InputError
		switch {
		case errors.As(err, &inErr):
			respondJSONError(w, http.StatusBadRequest, inErr.Msg)
		case errors.Is(err, cover.ErrShutdown):
			respondJSONError(w, http.StatusServiceUnavailable, err.Error())
		default:
			respondJSONError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusAccepted, s.Snapshot())
}

// session resolves the session named by id or writes a 404.
func (app *Application) session(w http.ResponseWriter, id string) (*cover.Session, bool) {
	s, err := app.Orchestrator.Session(id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "no such search session")
		return nil, false
	}
	return s, true
}

// GetSearch returns the snapshot of the current session. The optional
// session query parameter guards against reading a newer search.
func (app *Application) GetSearch(w http.ResponseWriter, r *http.Request) {
	s, ok := app.session(w, r.URL.Query().Get("session"))
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.Snapshot())
}

type sessionRequest struct {
	Session string `json:"session"`
}

// CancelSearch cancels the current session.
func (app *Application) CancelSearch(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := app.session(w, req.Session)
	if !ok {
		return
	}
	s.Cancel()
	respondJSON(w, http.StatusOK, s.Snapshot())
}

type candidateRequest struct {
	Session    string `json:"session"`
	Service    string `json:"service"`
	Identifier string `json:"identifier"`
}

// SelectCandidate lists the images of one candidate.
func (app *Application) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := app.session(w, req.Session)
	if !ok {
		return
	}
	c, found := s.FindCandidate(req.Service, req.Identifier)
	if !found {
		respondJSONError(w, http.StatusNotFound, "no such candidate")
		return
	}
	images := s.SelectCandidate(&c)
	if images == nil {
		images = []cover.PotentialImage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"state": s.State(), "images": images})
}

type imageRequest struct {
	Session    string `json:"session"`
	Identifier string `json:"identifier"`
}

type imageResponse struct {
	State    cover.State        `json:"state"`
	Accepted bool               `json:"accepted"`
	Result   *cover.ImageResult `json:"result"`
}

// SelectImage resolves an image listed earlier in the session. An accepted
// image ends the session and becomes the one POST /api/save stores.
func (app *Application) SelectImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := app.session(w, req.Session)
	if !ok {
		return
	}
	pi, found := s.PotentialImage(req.Identifier)
	if !found {
		respondJSONError(w, http.StatusNotFound, "no such image")
		return
	}
	res, accepted := s.SelectImage(&pi)
	if res == nil && s.State().Terminal() {
		respondJSONError(w, http.StatusConflict, "search session has ended")
		return
	}
	if res == nil {
		respondJSON(w, http.StatusBadGateway, imageResponse{State: s.State()})
		return
	}
	respondJSON(w, http.StatusOK, imageResponse{State: s.State(), Accepted: accepted, Result: res})
}

// RequestMore resolves the next batch of images for a service.
func (app *Application) RequestMore(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := app.session(w, req.Session)
	if !ok {
		return
	}
	service := mux.Vars(r)["service"]
	err := s.RequestMore(service)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"service": service})
	case errors.Is(err, cover.ErrSearchPending), errors.Is(err, cover.ErrBatchRunning), errors.Is(err, cover.ErrSessionEnded):
		respondJSONError(w, http.StatusConflict, err.Error())
	default:
		respondJSONError(w, http.StatusNotFound, err.Error())
	}
}

type saveRequest struct {
	Session  string `json:"session"`
	Filename string `json:"filename"`
}

// Save downloads the accepted image of the session into the output folder.
func (app *Application) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if app.Saver == nil {
		respondJSONError(w, http.StatusInternalServerError, "saving is not configured")
		return
	}
	s, ok := app.session(w, req.Session)
	if !ok {
		return
	}
	chosen := s.Chosen()
	if chosen == nil {
		respondJSONError(w, http.StatusConflict, "no image has been accepted")
		return
	}
	res, err := app.Saver.Save(r.Context(), chosen, save.Options{
		Dir:       app.OutputDir,
		Filename:  req.Filename,
		SessionID: s.ID(),
	})
	if err != nil {
		log.WithError(err).WithField("session", s.ID()).Error("save failed")
		respondJSONError(w, http.StatusBadGateway, "failed to save cover")
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
