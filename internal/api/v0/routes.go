// Package v0 implements the v0 REST API for the cachebound server.
package v0

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cachebound/cachebound/internal/service"
)

// Routes holds the HTTP handlers for the v0 API.
type Routes struct {
	svc service.Service
}

// NewRoutes creates the v0 API route handlers.
func NewRoutes(svc service.Service) *Routes {
	return &Routes{svc: svc}
}

// Router returns the chi router for the v0 API.
func (routes *Routes) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/resources", routes.listResources)
	r.Route("/resources/{resource}/keys/{key}", func(r chi.Router) {
		r.Get("/", routes.getValue)
		r.Post("/refresh", routes.refresh)
		r.Post("/invalidate", routes.invalidate)
		r.Get("/status", routes.keyStatus)
		r.Get("/events", routes.events)
	})
	return r
}

// listResources handles GET /resources.
func (routes *Routes) listResources(w http.ResponseWriter, r *http.Request) {
	infos := routes.svc.ListResources(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"resources": infos})
}

// getValue handles GET /resources/{resource}/keys/{key}. It returns the
// cached value immediately; a policy-triggered fetch runs in the
// background.
func (routes *Routes) getValue(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	key := chi.URLParam(r, "key")

	value, err := routes.svc.GetValue(r.Context(), resource, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// refresh handles POST /resources/{resource}/keys/{key}/refresh. The
// optional "force" query parameter bypasses the freshness policy.
func (routes *Routes) refresh(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	key := chi.URLParam(r, "key")

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force parameter")
			return
		}
		force = parsed
	}

	result, err := routes.svc.Refresh(r.Context(), resource, key, force)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == "failed" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

// invalidate handles POST /resources/{resource}/keys/{key}/invalidate.
func (routes *Routes) invalidate(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	key := chi.URLParam(r, "key")

	if err := routes.svc.Invalidate(r.Context(), resource, key); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// keyStatus handles GET /resources/{resource}/keys/{key}/status.
func (routes *Routes) keyStatus(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	key := chi.URLParam(r, "key")

	status, err := routes.svc.KeyStatus(r.Context(), resource, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrResourceNotFound),
		errors.Is(err, service.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
