package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dwizi/region-relay/internal/grammar"
)

type regionPayload struct {
	Code    string   `json:"code"`
	Aliases []string `json:"aliases"`
}

func (r *router) handleCatalog(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog is not loaded"})
		return
	}
	regions := make([]regionPayload, 0, len(r.deps.Catalog.Regions()))
	for _, region := range r.deps.Catalog.Regions() {
		aliases := region.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		regions = append(regions, regionPayload{Code: region.Code, Aliases: aliases})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"country_keyword": r.deps.Catalog.CountryKeyword(),
		"regions":         regions,
		"tags":            r.deps.Catalog.Tags(),
	})
}

func (r *router) handleStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store is not configured"})
		return
	}
	offset := strings.TrimSpace(req.URL.Query().Get("offset"))
	if offset == "" {
		offset = r.deps.Config.TimezoneOffset
	}
	location, err := grammar.ParseOffset(offset)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must look like +03:00"})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()
	stats, err := r.deps.Store.Stats(ctx, r.deps.Now(), location)
	if err != nil {
		if r.deps.Logger != nil {
			r.deps.Logger.Error("archive stats failed", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to count messages"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"offset": location.String(),
		"stats":  stats,
	})
}
