package cases

import "time"

// Case is one unit of work for one uploaded spreadsheet file. Cases are
// partitioned by tenant and retained forever for audit.
type Case struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	UploaderID    string    `json:"uploader_id"`
	Conversation  string    `json:"conversation,omitempty"`
	FileName      string    `json:"file_name"`
	FileHash      string    `json:"file_hash"`
	Status        Status    `json:"status"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// WaitDeadline is set while the case sits in an awaiting state; the
	// expiry sweeper cancels the case once it passes.
	WaitDeadline *time.Time `json:"wait_deadline,omitempty"`

	// LastSequence is the sequence number of the newest audit event. It is
	// the optimistic-concurrency token for all event appends.
	LastSequence int64 `json:"last_sequence"`
}
