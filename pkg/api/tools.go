package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"orderdesk-hq/callisto/pkg/committee"
	"orderdesk-hq/callisto/pkg/order"
	"orderdesk-hq/callisto/pkg/submit"
)

// toolParseRequest runs the extractor on raw workbook bytes without a case.
type toolParseRequest struct {
	TenantID      string `json:"tenant_id"`
	FileName      string `json:"file_name"`
	FileHash      string `json:"file_hash"`
	ContentBase64 string `json:"content_base64"`
}

func (s *Server) handleToolParse(w http.ResponseWriter, r *http.Request) {
	var req toolParseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes*2)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil || len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "content is missing or not valid base64")
		return
	}

	meta := order.Meta{
		TenantID:   req.TenantID,
		ReceivedAt: time.Now().UTC(),
		FileName:   req.FileName,
		FileHash:   req.FileHash,
	}
	o, err := s.extractor.Extract(meta, data)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

// toolCommitteeRequest runs a committee review over a prepared pack.
type toolCommitteeRequest struct {
	Pack *committee.Pack `json:"pack"`
	Seed int64           `json:"seed"`
}

func (s *Server) handleToolCommitteeReview(w http.ResponseWriter, r *http.Request) {
	var req toolCommitteeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pack == nil {
		s.writeError(w, http.StatusBadRequest, "pack is required")
		return
	}

	result, err := s.reviewer.Review(r.Context(), req.Pack, req.Seed)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleToolCreateDraft submits a fully resolved canonical order.
func (s *Server) handleToolCreateDraft(w http.ResponseWriter, r *http.Request) {
	var o order.CanonicalOrder
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed canonical order")
		return
	}

	res := s.submitter.Submit(r.Context(), &o, 1)
	switch res.Outcome {
	case submit.OutcomeCreated, submit.OutcomeDuplicate:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"outcome":           res.Outcome,
			"external_order_id": res.ExternalOrderID,
		})
	case submit.OutcomeRetryable:
		s.writeError(w, http.StatusServiceUnavailable, res.Err.Error())
	default:
		s.writeError(w, http.StatusUnprocessableEntity, res.Err.Error())
	}
}
