package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

type waterfallResponse struct {
	Config model.WaterfallConfig `json:"config"`
	Source string                `json:"source"`
}

func (s *Server) handleListWaterfalls(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.deps.Configs.List(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if cfgs == nil {
		cfgs = []model.WaterfallConfig{}
	}
	respondJSON(w, http.StatusOK, cfgs)
}

// handleGetWaterfall returns the effective policy and where it came from.
func (s *Server) handleGetWaterfall(w http.ResponseWriter, r *http.Request) {
	field := strings.ToLower(chi.URLParam(r, "field"))
	if !model.IsKnownField(field) {
		respondError(w, http.StatusBadRequest, "unknown field "+field)
		return
	}
	cfg, src, err := s.deps.Configs.Get(r.Context(), chi.URLParam(r, "tenant"), field)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, waterfallResponse{Config: cfg, Source: string(src)})
}

func (s *Server) handlePutWaterfall(w http.ResponseWriter, r *http.Request) {
	field := strings.ToLower(chi.URLParam(r, "field"))
	if !model.IsKnownField(field) {
		respondError(w, http.StatusBadRequest, "unknown field "+field)
		return
	}
	var cfg model.WaterfallConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	cfg.TenantID = chi.URLParam(r, "tenant")
	cfg.Field = field

	saved, err := s.deps.Configs.Put(r.Context(), cfg)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteWaterfall(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Configs.Delete(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "field")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Registry.ListAll(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []model.EnrichmentProvider{}
	}
	respondJSON(w, http.StatusOK, list)
}

// handlePutProvider stores a tenant-scoped catalog entry. Rolling stats are
// kept from any existing entry.
func (s *Server) handlePutProvider(w http.ResponseWriter, r *http.Request) {
	var p model.EnrichmentProvider
	if !decodeJSON(w, r, &p) {
		return
	}
	p.TenantID = chi.URLParam(r, "tenant")
	p.ID = chi.URLParam(r, "provider")

	now := s.nowFunc().UTC()
	if existing, err := s.deps.Registry.Get(r.Context(), p.TenantID, p.ID); err == nil {
		p.AvgLatencyMs = existing.AvgLatencyMs
		p.SuccessRate = existing.SuccessRate
		if existing.TenantID == p.TenantID {
			p.CreatedAt = existing.CreatedAt
		}
	} else {
		p.SuccessRate = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := s.deps.Registry.Save(r.Context(), p); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.deps.Registry.SetEnabled(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "provider"), enabled)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, p)
	}
}

// handleCheckProvider probes the adapter. The result is informational and
// does not feed the circuit breaker.
func (s *Server) handleCheckProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	a := s.deps.Registry.Adapter(id)
	if a == nil {
		respondError(w, http.StatusNotFound, "no adapter registered for "+id)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()
	respondJSON(w, http.StatusOK, map[string]any{
		"provider": id,
		"healthy":  a.HealthCheck(ctx),
	})
}

func (s *Server) handleTenantHealth(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Health.Snapshot(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []model.ProviderHealth{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleResetHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Health.Reset(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "provider")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
