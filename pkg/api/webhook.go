package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"orderdesk-hq/callisto/pkg/cases"
	"orderdesk-hq/callisto/pkg/orchestrate"
	"orderdesk-hq/callisto/pkg/security/auth"
	"orderdesk-hq/callisto/pkg/store"
)

// verifyFileHash checks the declared hash is the lowercase hex SHA-256 of
// the content.
func verifyFileHash(declared string, data []byte) bool {
	if len(declared) != 64 || strings.ToLower(declared) != declared {
		return false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == declared
}

// spreadsheetExtensions are the accepted workbook file extensions.
var spreadsheetExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".ods":  true,
}

// fileUploadedRequest is the chat adapter's file notification. The content
// travels base64-encoded; the adapter has already verified the hash.
type fileUploadedRequest struct {
	CaseID        string `json:"case_id"`
	TenantID      string `json:"tenant_id"`
	UserID        string `json:"user_id"`
	FileName      string `json:"file_name"`
	FileHash      string `json:"file_hash"`
	ActivityID    string `json:"activity_id,omitempty"`
	ContentBase64 string `json:"content_base64"`
}

func (s *Server) handleFileUploaded(w http.ResponseWriter, r *http.Request) {
	var req fileUploadedRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes*2)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CaseID == "" || req.TenantID == "" || req.FileName == "" || req.FileHash == "" {
		s.writeError(w, http.StatusBadRequest, "case_id, tenant_id, file_name and file_hash are required")
		return
	}

	ext := strings.ToLower(path.Ext(req.FileName))
	if !spreadsheetExtensions[ext] {
		s.writeError(w, http.StatusUnsupportedMediaType, "only spreadsheet workbooks are accepted")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "content is not valid base64")
		return
	}
	// A file exactly at the limit is accepted; one byte over is rejected.
	if int64(len(data)) > s.options.MaxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "file content is empty")
		return
	}
	if !verifyFileHash(req.FileHash, data) {
		s.writeError(w, http.StatusBadRequest, "file_hash does not match the content")
		return
	}

	ctx := r.Context()
	if _, err := s.engine.StoreIncomingFile(ctx, req.CaseID, req.FileName, req.FileHash, data); err != nil {
		s.logger.Error("file store failed", "case_id", req.CaseID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store the file")
		return
	}

	c, err := s.engine.HandleFileUploaded(ctx, orchestrate.Upload{
		CaseID:       req.CaseID,
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		Conversation: req.ActivityID,
		FileName:     req.FileName,
		FileHash:     req.FileHash,
	})
	if err != nil {
		s.logger.Error("upload handling failed", "case_id", req.CaseID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process the upload")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"case_id": c.ID,
		"status":  c.Status,
	})
}

type correctionsRequest struct {
	CaseID      string                   `json:"case_id"`
	Corrections []orchestrate.Correction `json:"corrections"`
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	var req correctionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		s.writeError(w, http.StatusBadRequest, "case_id and corrections are required")
		return
	}
	s.resumeCase(w, r, req.CaseID, func(actor cases.Actor) error {
		return s.engine.HandleCorrections(r.Context(), req.CaseID, actor, req.Corrections)
	})
}

type approvalRequest struct {
	CaseID   string `json:"case_id"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		s.writeError(w, http.StatusBadRequest, "case_id and approved are required")
		return
	}
	s.resumeCase(w, r, req.CaseID, func(actor cases.Actor) error {
		return s.engine.HandleApproval(r.Context(), req.CaseID, actor, req.Approved)
	})
}

type customerSelectedRequest struct {
	CaseID     string `json:"case_id"`
	CustomerID string `json:"customer_id"`
}

func (s *Server) handleCustomerSelected(w http.ResponseWriter, r *http.Request) {
	var req customerSelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" || req.CustomerID == "" {
		s.writeError(w, http.StatusBadRequest, "case_id and customer_id are required")
		return
	}
	s.resumeCase(w, r, req.CaseID, func(actor cases.Actor) error {
		return s.engine.HandleCustomerSelected(r.Context(), req.CaseID, actor, req.CustomerID)
	})
}

type itemSelectedRequest struct {
	CaseID   string `json:"case_id"`
	RowIndex int    `json:"row_index"`
	ItemID   string `json:"item_id"`
}

func (s *Server) handleItemSelected(w http.ResponseWriter, r *http.Request) {
	var req itemSelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" || req.ItemID == "" {
		s.writeError(w, http.StatusBadRequest, "case_id, row_index and item_id are required")
		return
	}
	s.resumeCase(w, r, req.CaseID, func(actor cases.Actor) error {
		return s.engine.HandleItemSelected(r.Context(), req.CaseID, actor, req.RowIndex, req.ItemID)
	})
}

type fileReuploadedRequest struct {
	CaseID        string `json:"case_id"`
	FileName      string `json:"file_name"`
	FileHash      string `json:"file_hash"`
	ContentBase64 string `json:"content_base64"`
}

func (s *Server) handleFileReuploaded(w http.ResponseWriter, r *http.Request) {
	var req fileReuploadedRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes*2)).Decode(&req); err != nil ||
		req.CaseID == "" || req.FileName == "" || req.FileHash == "" {
		s.writeError(w, http.StatusBadRequest, "case_id, file_name and file_hash are required")
		return
	}

	ext := strings.ToLower(path.Ext(req.FileName))
	if !spreadsheetExtensions[ext] {
		s.writeError(w, http.StatusUnsupportedMediaType, "only spreadsheet workbooks are accepted")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil || len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "file content is missing or not valid base64")
		return
	}
	if int64(len(data)) > s.options.MaxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
		return
	}

	if _, err := s.engine.StoreIncomingFile(r.Context(), req.CaseID, req.FileName, req.FileHash, data); err != nil {
		s.logger.Error("file store failed", "case_id", req.CaseID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store the file")
		return
	}
	s.resumeCase(w, r, req.CaseID, func(actor cases.Actor) error {
		return s.engine.HandleFileReuploaded(r.Context(), req.CaseID, actor, req.FileName, req.FileHash)
	})
}

type cancelRequest struct {
	CaseID string `json:"case_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	// Cancellation is restricted to privileged actors; a plain sales user
	// or the bot identity cannot cancel cases.
	p := principal(r)
	if !p.HasRole(auth.RoleOpsAuditor) && !p.HasRole(auth.RoleSalesManager) {
		s.writeError(w, http.StatusForbidden, "not allowed to cancel cases")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		s.writeError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	s.resumeCase(w, r, req.CaseID, func(actor cases.Actor) error {
		return s.engine.HandleCancel(r.Context(), req.CaseID, actor, req.Reason)
	})
}

// resumeCase runs a human-event handler and reports the case's new state.
func (s *Server) resumeCase(w http.ResponseWriter, r *http.Request, caseID string, fn func(cases.Actor) error) {
	p := principal(r)
	actor := cases.Actor{Type: cases.ActorUser, UserID: p.UserID}
	if p.HasRole(auth.RoleBot) {
		actor.Type = cases.ActorBot
	}
	if p.HasRole(auth.RoleOpsAuditor) || p.HasRole(auth.RoleSalesManager) {
		actor.Type = cases.ActorAdmin
	}

	if err := fn(actor); err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		// Wrong state, illegal transition and similar conflicts.
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	c, err := s.store.GetCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "case not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"case_id": c.ID,
		"status":  c.Status,
	})
}
