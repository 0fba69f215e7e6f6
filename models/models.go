package models

import "time"

// Kind classifies a relayed message by addressing mode and payload.
type Kind string

const (
	KindDirectText Kind = "DIRECT_TEXT"
	KindDirectFile Kind = "DIRECT_FILE"
	KindGroupText  Kind = "GROUP_TEXT"
	KindGroupFile  Kind = "GROUP_FILE"
)

// Group reports whether the message is addressed to a group rather than a user.
func (k Kind) Group() bool {
	return k == KindGroupText || k == KindGroupFile
}

// File reports whether the message carries a file payload.
func (k Kind) File() bool {
	return k == KindDirectFile || k == KindGroupFile
}

// Status is the delivery state signalled back to the sender. The relay does
// not persist statuses, it only generates and forwards these signals.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
)

// Envelope is one relayed message. ID is caller-supplied, unique per sender,
// and echoed back verbatim in acknowledgements. Recipient is a username for
// direct kinds and a group name for group kinds.
type Envelope struct {
	ID        string
	Sender    string
	Recipient string
	Content   string
	Filename  string
	Kind      Kind
	Status    Status
	Timestamp time.Time
}

type Group struct {
	Name    string
	Members []string
}
