// Package api exposes the analysis operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// triggerTimeout bounds a manually triggered analysis of all brands
const triggerTimeout = 30 * time.Minute

// AnalysisService is the set of operations served by the API
type AnalysisService interface {
	CreateBrand(ctx context.Context, brand *models.Brand) error
	GetBrand(ctx context.Context, brandID string) (*models.Brand, error)
	RunAnalysis(ctx context.Context, brandID string) (*models.SOVSnapshot, error)
	AddCompetitor(ctx context.Context, brandID, name string) (*models.SOVSnapshot, error)
	DeleteCompetitor(ctx context.Context, brandID, name string) (*models.SOVSnapshot, error)
	GetTrend(ctx context.Context, brandID string, from, to time.Time) (*models.Trend, error)
	GetLatestSOV(ctx context.Context, brandID string) (*models.LatestSOV, error)
	ScoreBlog(ctx context.Context, brandID, url string) (*models.BlogScoreRecord, error)
	ListBlogScores(ctx context.Context, brandID string) ([]*models.BlogScoreRecord, error)
	AnalyzeAll(ctx context.Context) error
	GetMetrics() string
}

// Handler serves the HTTP API
type Handler struct {
	service AnalysisService
	now     func() time.Time
}

func NewHandler(service AnalysisService) *Handler {
	return &Handler{service: service, now: time.Now}
}

// Router registers every route on a new mux router
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", h.health).Methods("GET")

	// Metrics endpoint
	router.HandleFunc("/metrics", h.metrics).Methods("GET")

	// Manual trigger endpoint
	router.HandleFunc("/trigger", h.trigger).Methods("POST")

	router.HandleFunc("/brands", h.createBrand).Methods("POST")
	brands := router.PathPrefix("/brands/{brandId}").Subrouter()
	brands.HandleFunc("", h.getBrand).Methods("GET")
	brands.HandleFunc("/analysis", h.runAnalysis).Methods("POST")
	brands.HandleFunc("/competitors", h.addCompetitor).Methods("POST")
	brands.HandleFunc("/competitors/{name}", h.deleteCompetitor).Methods("DELETE")
	brands.HandleFunc("/sov/latest", h.latestSOV).Methods("GET")
	brands.HandleFunc("/sov/trend", h.trend).Methods("GET")
	brands.HandleFunc("/blog-scores", h.scoreBlog).Methods("POST")
	brands.HandleFunc("/blog-scores", h.listBlogScores).Methods("GET")

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.service.GetMetrics()))
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := h.service.AnalyzeAll(ctx); err != nil {
			logrus.Errorf("Manual analysis trigger failed: %v", err)
		}
	}()

	writeData(w, http.StatusAccepted, map[string]string{"message": "Analysis triggered successfully"})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) createBrand(w http.ResponseWriter, r *http.Request) {
	var brand models.Brand
	if err := decode(r, &brand); err != nil {
		writeError(w, err, nil)
		return
	}
	if err := h.service.CreateBrand(r.Context(), &brand); err != nil {
		writeError(w, err, nil)
		return
	}
	writeData(w, http.StatusCreated, &brand)
}

func (h *Handler) getBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := h.service.GetBrand(r.Context(), mux.Vars(r)["brandId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeData(w, http.StatusOK, brand)
}

func (h *Handler) runAnalysis(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RunAnalysis(r.Context(), mux.Vars(r)["brandId"])
	if err != nil {
		if snap != nil {
			writeError(w, err, snap)
		} else {
			writeError(w, err, nil)
		}
		return
	}
	writeData(w, http.StatusOK, snap)
}

type competitorRequest struct {
	Name string `json:"name"`
}

func (h *Handler) addCompetitor(w http.ResponseWriter, r *http.Request) {
	var req competitorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := h.service.AddCompetitor(r.Context(), mux.Vars(r)["brandId"], req.Name)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeData(w, http.StatusCreated, snap)
}

func (h *Handler) deleteCompetitor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := h.service.DeleteCompetitor(r.Context(), vars["brandId"], vars["name"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeData(w, http.StatusOK, snap)
}

func (h *Handler) latestSOV(w http.ResponseWriter, r *http.Request) {
	latest, err := h.service.GetLatestSOV(r.Context(), mux.Vars(r)["brandId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeData(w, http.StatusOK, latest)
}

func parseBound(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", models.ErrInvalidInput, key)
	}
	return t, nil
}

func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	from, err := parseBound(r, "from")
	if err != nil {
		writeError(w, err, nil)
		return
	}
	to, err := parseBound(r, "to")
	if err != nil {
		writeError(w, err, nil)
		return
	}

	trend, err := h.service.GetTrend(r.Context(), mux.Vars(r)["brandId"], from, to)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeData(w, http.StatusOK, trend)
}

type blogScoreRequest struct {
	URL string `json:"url"`
}

func (h *Handler) scoreBlog(w http.ResponseWriter, r *http.Request) {
	var req blogScoreRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	rec, err := h.service.ScoreBlog(r.Context(), mux.Vars(r)["brandId"], req.URL)
	if err != nil {
		if rec != nil {
			writeError(w, err, rec)
		} else {
			writeError(w, err, nil)
		}
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *Handler) listBlogScores(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListBlogScores(r.Context(), mux.Vars(r)["brandId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if records == nil {
		records = []*models.BlogScoreRecord{}
	}
	writeData(w, http.StatusOK, records)
}
