package domain

import "time"

// TicketTranslation is the machine translation of a ticket into one target language.
type TicketTranslation struct {
	ID                int64
	TicketID          int64
	TargetLang        string
	TranslatedTitle   string
	TranslatedContent string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TicketReply holds a drafted answer in the agent language and in the customer language.
type TicketReply struct {
	ID            int64
	TicketID      int64
	ReplyLang     string
	OriginalReply string
	TargetReply   string
	IsSelected    bool
	CreatedAt     time.Time
}

// AuditResult is the verdict of a human audit.
type AuditResult string

const (
	AuditResultPass   AuditResult = "PASS"
	AuditResultReject AuditResult = "REJECT"
)

// Valid reports whether r is a known verdict.
func (r AuditResult) Valid() bool {
	return r == AuditResultPass || r == AuditResultReject
}

// TicketAudit is an immutable audit verdict on one reply.
type TicketAudit struct {
	ID          int64
	TicketID    int64
	ReplyID     int64
	AuditResult AuditResult
	AuditRemark string
	AuditorID   string
	CreatedAt   time.Time
}
