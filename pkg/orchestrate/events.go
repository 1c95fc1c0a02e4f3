package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"orderdesk-hq/callisto/pkg/blob"
	"orderdesk-hq/callisto/pkg/cases"
	"orderdesk-hq/callisto/pkg/order"
	"orderdesk-hq/callisto/pkg/store"
)

// Upload is the chat adapter's file-arrival notification. The raw bytes are
// already in the evidence store under the blob pointer.
type Upload struct {
	CaseID       string
	TenantID     string
	UserID       string
	Conversation string
	FileName     string
	FileHash     string
}

// Correction is one user-supplied fix: a column remap or a field override.
type Correction struct {
	Field    order.Field `json:"field"`
	ColumnID string      `json:"column_id,omitempty"`
	Value    string      `json:"value,omitempty"`
}

// HandleFileUploaded creates the case and starts driving it. When two
// uploads race on the same case id, the loser observes the winner's case
// and returns it unchanged.
func (e *Engine) HandleFileUploaded(ctx context.Context, up Upload) (*cases.Case, error) {
	now := e.nowFunc().UTC()
	c := &cases.Case{
		ID:            up.CaseID,
		TenantID:      up.TenantID,
		UploaderID:    up.UserID,
		Conversation:  up.Conversation,
		FileName:      up.FileName,
		FileHash:      up.FileHash,
		Status:        cases.StatusCreated,
		CorrelationID: up.CaseID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.store.CreateCase(ctx, c)
	var dup *store.DuplicateCaseError
	if errors.As(err, &dup) {
		return e.store.GetCase(ctx, up.CaseID)
	}
	if err != nil {
		return nil, err
	}

	if err := e.appendTransition(ctx, c, cases.EventCaseCreated, "",
		cases.Actor{Type: cases.ActorBot, UserID: up.UserID},
		map[string]any{"file_name": up.FileName, "file_hash": up.FileHash}, nil); err != nil {
		return nil, err
	}

	if err := e.Advance(ctx, c.ID); err != nil {
		return nil, err
	}
	return e.store.GetCase(ctx, c.ID)
}

// HandleCorrections resumes a case waiting for corrections: the corrections
// are stored as an audit artifact and the case re-parses with a fresh
// canonical version.
func (e *Engine) HandleCorrections(ctx context.Context, caseID string, actor cases.Actor, corrections []Correction) error {
	c, err := e.expectStatus(ctx, caseID, cases.StatusAwaitingCorrections)
	if err != nil {
		return err
	}

	data, err := json.Marshal(corrections)
	if err != nil {
		return fmt.Errorf("failed to marshal corrections: %w", err)
	}
	name := fmt.Sprintf("corrections-%d.json", c.LastSequence+1)
	uri, _, err := e.blobs.Put(ctx, blob.ContainerAudit, c.ID, name, data)
	if err != nil {
		return err
	}

	if err := e.appendTransition(ctx, c, cases.EventCorrectionsApplied, cases.StatusParsing,
		actor, map[string]any{"corrections": len(corrections)},
		map[string]string{"corrections": uri}); err != nil {
		return err
	}
	return e.Advance(ctx, caseID)
}

// HandleCustomerSelected resumes a case waiting for a customer pick.
func (e *Engine) HandleCustomerSelected(ctx context.Context, caseID string, actor cases.Actor, customerID string) error {
	c, err := e.expectStatus(ctx, caseID, cases.StatusAwaitingCustomerSelection)
	if err != nil {
		return err
	}

	o, err := e.loadCanonical(ctx, c.ID)
	if err != nil {
		return err
	}
	o.Customer.Status = order.ResolutionResolved
	o.Customer.ResolvedID = customerID
	o.Customer.Candidates = nil

	uri, err := e.putCanonicalVersion(ctx, c, o)
	if err != nil {
		return err
	}

	if err := e.appendTransition(ctx, c, cases.EventCustomerSelected, cases.StatusResolvingCustomer,
		actor, map[string]any{"customer_id": customerID},
		map[string]string{"canonical": uri}); err != nil {
		return err
	}
	return e.Advance(ctx, caseID)
}

// HandleItemSelected resumes a case waiting for an item pick on one row.
func (e *Engine) HandleItemSelected(ctx context.Context, caseID string, actor cases.Actor, rowIndex int, itemID string) error {
	c, err := e.expectStatus(ctx, caseID, cases.StatusAwaitingItemSelection)
	if err != nil {
		return err
	}

	o, err := e.loadCanonical(ctx, c.ID)
	if err != nil {
		return err
	}
	found := false
	for i := range o.LineItems {
		if o.LineItems[i].RowIndex == rowIndex {
			o.LineItems[i].Status = order.ResolutionResolved
			o.LineItems[i].ResolvedItemID = itemID
			o.LineItems[i].Candidates = nil
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("case %s has no line at row %d", caseID, rowIndex)
	}

	uri, err := e.putCanonicalVersion(ctx, c, o)
	if err != nil {
		return err
	}

	if err := e.appendTransition(ctx, c, cases.EventItemSelected, cases.StatusResolvingItems,
		actor, map[string]any{"row_index": rowIndex, "item_id": itemID},
		map[string]string{"canonical": uri}); err != nil {
		return err
	}
	return e.Advance(ctx, caseID)
}

// HandleFileReuploaded resumes a parse-blocked case with a fresh file.
func (e *Engine) HandleFileReuploaded(ctx context.Context, caseID string, actor cases.Actor, fileName, fileHash string) error {
	c, err := e.expectStatus(ctx, caseID, cases.StatusParseBlocked)
	if err != nil {
		return err
	}

	if err := e.store.UpdateCaseFile(ctx, caseID, fileName, fileHash, e.nowFunc().UTC()); err != nil {
		return err
	}
	c.FileName, c.FileHash = fileName, fileHash

	if err := e.appendTransition(ctx, c, cases.EventFileReuploaded, cases.StatusStoringFile,
		actor, map[string]any{"file_name": fileName, "file_hash": fileHash}, nil); err != nil {
		return err
	}
	return e.Advance(ctx, caseID)
}

// HandleApproval resumes a case waiting for approval. Rejection loops the
// case back to corrections; approval starts the draft creation.
func (e *Engine) HandleApproval(ctx context.Context, caseID string, actor cases.Actor, approved bool) error {
	c, err := e.expectStatus(ctx, caseID, cases.StatusAwaitingApproval)
	if err != nil {
		return err
	}

	next := cases.StatusAwaitingCorrections
	if approved {
		next = cases.StatusCreatingDraft
	}
	if err := e.appendTransition(ctx, c, cases.EventApprovalReceived, next,
		actor, map[string]any{"approved": approved}, nil); err != nil {
		return err
	}
	if approved {
		return e.Advance(ctx, caseID)
	}
	return nil
}

// HandleCancel cancels any non-terminal case. Privileged actors only; the
// boundary layer enforces the role.
func (e *Engine) HandleCancel(ctx context.Context, caseID string, actor cases.Actor, reason string) error {
	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if c.Status.IsTerminal() {
		return fmt.Errorf("case %s is already %s", caseID, c.Status)
	}
	return e.appendTransition(ctx, c, cases.EventCaseCancelled, cases.StatusCancelled,
		actor, map[string]any{"reason": reason}, nil)
}

// expectStatus loads a case and checks it is parked where the event expects.
func (e *Engine) expectStatus(ctx context.Context, caseID string, want cases.Status) (*cases.Case, error) {
	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != want {
		return nil, fmt.Errorf("case %s is %s, expected %s", caseID, c.Status, want)
	}
	return c, nil
}
