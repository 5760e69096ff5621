package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// SubmitTranslationRequest payload.
type SubmitTranslationRequest struct {
	TargetLang        string `json:"target_lang"`
	TranslatedTitle   string `json:"translated_title"`
	TranslatedContent string `json:"translated_content"`
}

// SubmitReplyRequest payload.
type SubmitReplyRequest struct {
	ReplyLang     string `json:"reply_lang"`
	OriginalReply string `json:"original_reply"`
	TargetReply   string `json:"target_reply"`
}

// SubmitAuditRequest payload.
type SubmitAuditRequest struct {
	ReplyID     int64              `json:"reply_id"`
	AuditResult domain.AuditResult `json:"audit_result"`
	AuditRemark string             `json:"audit_remark"`
}

// UpdateValidityRequest payload.
type UpdateValidityRequest struct {
	IsValid *bool `json:"is_valid"`
}

// TicketResponse represents a ticket.
type TicketResponse struct {
	ID          int64              `json:"id"`
	ExternalID  string             `json:"external_id"`
	Subject     string             `json:"subject"`
	Content     json.RawMessage    `json:"content"`
	ContentKind domain.ContentKind `json:"content_kind"`
	SourceLang  string             `json:"source_lang,omitempty"`
	State       domain.TicketState `json:"state"`
	IsValid     bool               `json:"is_valid"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TranslationResponse represents a translation.
type TranslationResponse struct {
	ID                int64     `json:"id"`
	TargetLang        string    `json:"target_lang"`
	TranslatedTitle   string    `json:"translated_title"`
	TranslatedContent string    `json:"translated_content"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ReplyResponse represents a reply draft.
type ReplyResponse struct {
	ID            int64     `json:"id"`
	ReplyLang     string    `json:"reply_lang,omitempty"`
	OriginalReply string    `json:"original_reply"`
	TargetReply   string    `json:"target_reply"`
	IsSelected    bool      `json:"is_selected"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditResponse represents an audit verdict.
type AuditResponse struct {
	ID          int64              `json:"id"`
	ReplyID     int64              `json:"reply_id"`
	AuditResult domain.AuditResult `json:"audit_result"`
	AuditRemark string             `json:"audit_remark,omitempty"`
	AuditorID   string             `json:"auditor_id"`
	CreatedAt   time.Time          `json:"created_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Translations []TranslationResponse `json:"translations"`
	Replies      []ReplyResponse       `json:"replies"`
	Audits       []AuditResponse       `json:"audits"`
}

// HistoryResponse represents one state transition.
type HistoryResponse struct {
	ID        int64               `json:"id"`
	Event     string              `json:"event"`
	FromState *domain.TicketState `json:"from_state"`
	ToState   domain.TicketState  `json:"to_state"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewTicketResponse maps a ticket. Structured content is embedded as JSON, plain content as a string.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	var content json.RawMessage
	if t.ContentKind == domain.ContentKindStructured && json.Valid([]byte(t.Content)) {
		content = json.RawMessage(t.Content)
	} else {
		content, _ = json.Marshal(t.Content)
	}
	return TicketResponse{
		ID:          t.ID,
		ExternalID:  t.ExternalID,
		Subject:     t.Subject,
		Content:     content,
		ContentKind: t.ContentKind,
		SourceLang:  t.SourceLang,
		State:       t.State,
		IsValid:     t.IsValid,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTranslationResponse maps a translation.
func NewTranslationResponse(t *domain.TicketTranslation) TranslationResponse {
	return TranslationResponse{
		ID:                t.ID,
		TargetLang:        t.TargetLang,
		TranslatedTitle:   t.TranslatedTitle,
		TranslatedContent: t.TranslatedContent,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// NewReplyResponse maps a reply.
func NewReplyResponse(r *domain.TicketReply) ReplyResponse {
	return ReplyResponse{
		ID:            r.ID,
		ReplyLang:     r.ReplyLang,
		OriginalReply: r.OriginalReply,
		TargetReply:   r.TargetReply,
		IsSelected:    r.IsSelected,
		CreatedAt:     r.CreatedAt,
	}
}

// NewAuditResponse maps an audit.
func NewAuditResponse(a *domain.TicketAudit) AuditResponse {
	return AuditResponse{
		ID:          a.ID,
		ReplyID:     a.ReplyID,
		AuditResult: a.AuditResult,
		AuditRemark: a.AuditRemark,
		AuditorID:   a.AuditorID,
		CreatedAt:   a.CreatedAt,
	}
}

// NewTicketDetailResponse maps a ticket with its children.
func NewTicketDetailResponse(d *domain.TicketDetail) TicketDetailResponse {
	resp := TicketDetailResponse{
		TicketResponse: NewTicketResponse(d.Ticket),
		Translations:   make([]TranslationResponse, 0, len(d.Translations)),
		Replies:        make([]ReplyResponse, 0, len(d.Replies)),
		Audits:         make([]AuditResponse, 0, len(d.Audits)),
	}
	for i := range d.Translations {
		resp.Translations = append(resp.Translations, NewTranslationResponse(&d.Translations[i]))
	}
	for i := range d.Replies {
		resp.Replies = append(resp.Replies, NewReplyResponse(&d.Replies[i]))
	}
	for i := range d.Audits {
		resp.Audits = append(resp.Audits, NewAuditResponse(&d.Audits[i]))
	}
	return resp
}

// NewHistoryResponse maps history entries.
func NewHistoryResponse(entries []domain.TicketHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, HistoryResponse{
			ID:        h.ID,
			Event:     h.Event,
			FromState: h.FromState,
			ToState:   h.ToState,
			CreatedAt: h.CreatedAt,
		})
	}
	return out
}
