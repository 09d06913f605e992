package entity

import "time"

const (
	EmailStatusNew              int16 = 0
	EmailStatusProcessing       int16 = 1
	EmailStatusSuccess          int16 = 10
	EmailStatusTemporaryFailure int16 = 40
	EmailStatusUnknownFailure   int16 = 49
	EmailStatusPermanentFailure int16 = 50
)

// EmailHistory is the audit row kept per email job.
type EmailHistory struct {
	JobID     string    `json:"job_id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    int16     `json:"status"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinal reports whether no further status change is expected.
func (h EmailHistory) IsFinal() bool {
	return h.Status == EmailStatusSuccess || h.Status == EmailStatusPermanentFailure
}
