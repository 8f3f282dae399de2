package model

import (
	"time"

	"github.com/lib/pq"
)

// PairNotification is the outbox row for one completed code. code_id is unique,
// so a code yields at most one notification.
type PairNotification struct {
	ID         string             `db:"id" json:"id"`
	CodeID     int64              `db:"code_id" json:"codeId"`
	CodeValue  string             `db:"code_value" json:"-"`
	Recipients pq.StringArray     `db:"recipients" json:"recipients"`
	Names      pq.StringArray     `db:"names" json:"names"`
	Status     NotificationStatus `db:"status" json:"status"`
	Attempts   int                `db:"attempts" json:"attempts"`
	LastError  *string            `db:"last_error" json:"lastError,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"createdAt"`
	ClaimedAt  *time.Time         `db:"claimed_at" json:"claimedAt,omitempty"`
	SentAt     *time.Time         `db:"sent_at" json:"sentAt,omitempty"`
}

type CreatePairNotificationParams struct {
	ID         string
	CodeID     int64
	CodeValue  string
	Recipients []string
	Names      []string
}
