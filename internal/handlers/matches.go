package handlers

import (
	"net/http"
	"strconv"

	"github.com/matchcast/predictor/internal/models"
)

type matchesQuery struct {
	League string `validate:"required,max=100"`
	Season int    `validate:"required,gte=1900,lte=2100"`
	Limit  int    `validate:"gte=1,lte=1000"`
	Status string `validate:"omitempty,alphanum,max=4"`
}

// GetMatches returns fixtures of a league season with their preferred prediction:
// live when one exists, otherwise pre-match.
func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("league") == "" || q.Get("season") == "" {
		h.errorResponse(w, http.StatusBadRequest, "league and season are required")
		return
	}

	season, err := strconv.Atoi(q.Get("season"))
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "season must be an integer")
		return
	}

	params := matchesQuery{
		League: q.Get("league"),
		Season: season,
		Limit:  parseLimit(q.Get("limit"), 300),
		Status: q.Get("status"),
	}
	if err := h.validator.Struct(params); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	rows, err := h.store.MatchesWithProbabilities(r.Context(), params.League, params.Season, params.Limit, params.Status == "NS")
	if err != nil {
		h.logger.Errorw("Failed to load matches", "error", err, "league", params.League, "season", params.Season)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load matches")
		return
	}

	if params.Status != "" {
		filtered := rows[:0]
		for _, m := range rows {
			if m.Status == params.Status {
				filtered = append(filtered, m)
			}
		}
		rows = filtered
	}
	if rows == nil {
		rows = []models.MatchWithProbabilities{}
	}

	h.jsonResponse(w, http.StatusOK, rows)
}

// GetLivePredictions returns the most recently refreshed live predictions.
func (h *Handler) GetLivePredictions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)

	rows, err := h.store.LatestLivePredictions(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("Failed to load live predictions", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load live predictions")
		return
	}
	if rows == nil {
		rows = []models.LivePrediction{}
	}
	h.jsonResponse(w, http.StatusOK, rows)
}

type leagueEntry struct {
	League string `json:"league"`
}

// GetLeagues lists the leagues present in the fixture table.
func (h *Handler) GetLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := h.store.Leagues(r.Context())
	if err != nil {
		h.logger.Errorw("Failed to load leagues", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load leagues")
		return
	}

	out := make([]leagueEntry, 0, len(leagues))
	for _, l := range leagues {
		out = append(out, leagueEntry{League: l})
	}
	h.jsonResponse(w, http.StatusOK, out)
}

// GetSeasons lists seasons, newest first, optionally for one league.
func (h *Handler) GetSeasons(w http.ResponseWriter, r *http.Request) {
	league := r.URL.Query().Get("league")

	seasons, err := h.store.Seasons(r.Context(), league)
	if err != nil {
		h.logger.Errorw("Failed to load seasons", "error", err, "league", league)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load seasons")
		return
	}
	if seasons == nil {
		seasons = []int{}
	}
	h.jsonResponse(w, http.StatusOK, seasons)
}

// parseLimit reads a positive limit, falling back to def and capping at MaxLimit.
func parseLimit(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
