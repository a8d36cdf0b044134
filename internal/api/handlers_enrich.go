package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/store"
	"github.com/sells-group/enrich-waterfall/internal/waterfall"
)

type enrichRequest struct {
	Fields []string `json:"fields"`
}

// handleEnrich runs the waterfall for the requested fields. With
// ?async=true the job is accepted and resolved in the background.
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	contactID := chi.URLParam(r, "contact")

	var req enrichRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))

	var (
		job *model.EnrichmentJob
		err error
	)
	if async {
		job, err = s.deps.Orchestrator.Submit(r.Context(), tenantID, contactID, req.Fields)
	} else {
		job, err = s.deps.Orchestrator.Enrich(r.Context(), tenantID, contactID, req.Fields)
	}

	switch {
	case err == nil && async:
		respondJSON(w, http.StatusAccepted, job)
	case err == nil:
		respondJSON(w, http.StatusOK, job)
	case waterfall.IsRequestError(err):
		body := errorBody{Error: err.Error()}
		if job != nil {
			body.Job = job
		}
		respondJSON(w, http.StatusBadRequest, body)
	default:
		respondErr(w, r, err)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.GetJob(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "job"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleListJobs lists a tenant's jobs, newest first. Query parameters:
// contact, status, limit, offset.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{
		TenantID:  chi.URLParam(r, "tenant"),
		ContactID: q.Get("contact"),
		Status:    model.JobStatus(strings.ToLower(q.Get("status"))),
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	jobs, err := s.deps.Store.ListJobs(r.Context(), filter)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []model.EnrichmentJob{}
	}
	respondJSON(w, http.StatusOK, jobs)
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Store.GetContact(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "contact"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// handlePutContact creates or replaces a contact. Path parameters win over
// the body's identifiers.
func (s *Server) handlePutContact(w http.ResponseWriter, r *http.Request) {
	var c model.Contact
	if !decodeJSON(w, r, &c) {
		return
	}
	c.TenantID = chi.URLParam(r, "tenant")
	c.ID = chi.URLParam(r, "contact")
	if err := c.Validate(); err != nil {
		respondErr(w, r, err)
		return
	}

	now := s.nowFunc().UTC()
	existing, err := s.deps.Store.GetContact(r.Context(), c.TenantID, c.ID)
	if err == nil {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	if err := s.deps.Store.UpsertContact(r.Context(), c); err != nil {
		respondErr(w, r, err)
		return
	}
	// Cached values were looked up from the old profile.
	if s.deps.Cache != nil && (existing == nil || profileChanged(*existing, c)) {
		if err := s.deps.Cache.Invalidate(r.Context(), c.TenantID, c.ID, ""); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, c)
}

func profileChanged(a, b model.Contact) bool {
	return a.Email != b.Email || a.Phone != b.Phone ||
		a.FirstName != b.FirstName || a.LastName != b.LastName ||
		a.Company != b.Company || a.Domain != b.Domain || a.LinkedInURL != b.LinkedInURL
}

// handleInvalidateCache drops cached values for a contact; ?field= limits
// it to one field.
func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	field := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("field")))
	if field != "" && !model.IsKnownField(field) {
		respondError(w, http.StatusBadRequest, "unknown field "+field)
		return
	}
	if s.deps.Cache == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.deps.Cache.Invalidate(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "contact"), field); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
