package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/apperr"
	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/search"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// searchResult is the POST /search body: the response plus the error, if any.
type searchResult struct {
	*search.Response
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var criteria models.SearchCriteria
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&criteria); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", criteria.Query),
		zap.Strings("sources", criteria.Sources),
		zap.Int("max_results", criteria.MaxResults),
	)

	resp, err := s.searcher.Search(r.Context(), criteria)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("search failed", zap.Error(err))
		}
		if resp == nil {
			s.respondJSON(w, status, searchResult{Error: err.Error(), Kind: apperr.KindOf(err).String()})
			return
		}
		s.respondJSON(w, status, searchResult{Response: resp, Error: err.Error(), Kind: apperr.KindOf(err).String()})
		return
	}

	status := http.StatusOK
	if resp.Metadata.Partial {
		status = http.StatusPartialContent
	}
	s.respondJSON(w, status, searchResult{Response: resp})
}

type fieldDoc struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description"`
}

func (s *Server) handleSearchDocs(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"method":      http.MethodPost,
		"path":        "/search",
		"contentType": "application/json",
		"fields": []fieldDoc{
			{Name: "query", Type: "string", Required: true, Description: "Keywords matched against job titles and descriptions"},
			{Name: "location", Type: "string", Description: "Location passed to the sources"},
			{Name: "preferredLocations", Type: "[]string", Description: "Locations that raise the location score; \"remote\" matches remote listings"},
			{Name: "sources", Type: "[]string", Default: s.searcher.DefaultSources(), Description: "Sources to query"},
			{Name: "jobType", Type: "string", Description: "full_time, part_time, contract, internship or temporary"},
			{Name: "salary", Type: "{min, max, currency}", Description: "Desired annual salary band"},
			{Name: "includeKeywords", Type: "[]string", Description: "Extra terms that raise the title score"},
			{Name: "excludeKeywords", Type: "[]string", Description: "Terms that push a listing's title score toward zero"},
			{Name: "postedWithinDays", Type: "int", Description: "Only listings posted within this many days (max 365)"},
			{Name: "maxResults", Type: "int", Default: models.DefaultMaxResults, Description: "Maximum listings returned (max 100)"},
			{Name: "timeoutMs", Type: "int", Description: "Deadline for the whole fan-out in milliseconds"},
		},
		"statuses": map[string]string{
			"200": "all sources succeeded",
			"206": "some sources failed; warnings name them",
			"400": "malformed or invalid request",
			"429": "every source was rate limited or blocked",
			"503": "every source failed",
			"504": "the deadline passed before any source responded",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"sources": s.searcher.Sources()})
}

func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "analytics not enabled")
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	metrics, err := s.history.List(r.Context(), since, limit)
	if err != nil {
		s.logger.Error("list search metrics failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if metrics == nil {
		metrics = []models.SearchMetric{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"searches": metrics})
}

// parseSince accepts an RFC 3339 timestamp or a duration before now ("24h"). Empty means
// the last 24 hours.
func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return now.Add(-24 * time.Hour), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return time.Time{}, errors.New("since must be an RFC 3339 time or a positive duration")
	}
	return now.Add(-d), nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
