package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"orderdesk-hq/callisto/pkg/blob"
	"orderdesk-hq/callisto/pkg/cases"
	"orderdesk-hq/callisto/pkg/orchestrate"
	"orderdesk-hq/callisto/pkg/security/auth"
	"orderdesk-hq/callisto/pkg/store"
)

// handleListCases serves GET /cases with filters and pagination. The role
// matrix narrows the result: users see their own cases, managers their
// tenant's, auditors everything.
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	q := r.URL.Query()

	query := store.CaseQuery{
		Status:     cases.Status(q.Get("status")),
		UploaderID: q.Get("userId"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			query.Offset = n
		}
	}
	if v := q.Get("dateFrom"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.DateFrom = &t
		}
	}
	if v := q.Get("dateTo"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.DateTo = &t
		}
	}

	// Scope the query to what the role may see.
	switch {
	case p.HasRole(auth.RoleOpsAuditor):
	case p.HasRole(auth.RoleSalesManager):
		query.TenantID = p.TenantID
	default:
		query.UploaderID = p.UserID
	}

	list, err := s.store.ListCases(r.Context(), query)
	if err != nil {
		s.logger.Error("case list failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list cases")
		return
	}
	if list == nil {
		list = []*cases.Case{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cases":  list,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// handleGetCase serves GET /cases/{id} with the canonical order snapshot.
func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authorizeCase(w, r)
	if !ok {
		return
	}

	response := map[string]any{"case": c}
	if o, err := s.engine.LoadCanonicalSnapshot(r.Context(), c.ID); err == nil {
		response["canonical_order"] = o
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleGetAudit serves GET /cases/{id}/audit: the ordered event log.
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authorizeCase(w, r)
	if !ok {
		return
	}

	events, err := s.store.ListEvents(r.Context(), c.ID)
	if err != nil {
		s.logger.Error("audit list failed", "case_id", c.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load the audit log")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleDownloadSAS serves GET /cases/{id}/download-sas: a time-limited
// signed URL for the original file.
func (s *Server) handleDownloadSAS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authorizeCase(w, r)
	if !ok {
		return
	}

	uri := blob.URI(blob.ContainerIncoming, c.ID, orchestrate.IncomingName(c.FileName, c.FileHash))
	expiresAt := time.Now().Add(s.options.DownloadTTL)
	signed, err := s.blobs.SignedURL(uri, expiresAt)
	if err != nil {
		s.logger.Error("sas generation failed", "case_id", c.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to sign the download url")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"url":        signed,
		"expires_at": expiresAt.UTC(),
	})
}

// authorizeCase loads the path case and applies the read matrix.
func (s *Server) authorizeCase(w http.ResponseWriter, r *http.Request) (*cases.Case, bool) {
	id := r.PathValue("id")
	c, err := s.store.GetCase(r.Context(), id)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			s.writeError(w, http.StatusNotFound, "case not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, "failed to load the case")
		}
		return nil, false
	}

	if !principal(r).CanReadCase(c.TenantID, c.UploaderID) {
		s.writeError(w, http.StatusForbidden, "not allowed to read this case")
		return nil, false
	}
	return c, true
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
