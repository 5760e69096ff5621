package domain

import (
	"encoding/json"
	"strings"
)

// ContentKind tags how a ticket's content column was rendered.
type ContentKind string

const (
	ContentKindStructured ContentKind = "structured"
	ContentKindPlain      ContentKind = "plain"
)

// Conversation is one turn of the external ticket thread.
type Conversation struct {
	ID        int64  `json:"id"`
	BodyText  string `json:"bodyText"`
	IsPrivate bool   `json:"isPrivate"`
	Incoming  bool   `json:"incoming"`
	UserID    *int64 `json:"userId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// TicketContent is the document handed to translation workers.
type TicketContent struct {
	Description   string         `json:"description"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

var marshalContent = json.Marshal

// NewTicketContent builds a content document, dropping turns without text.
func NewTicketContent(description string, turns []Conversation) TicketContent {
	content := TicketContent{Description: description}
	for _, turn := range turns {
		if strings.TrimSpace(turn.BodyText) == "" {
			continue
		}
		content.Conversations = append(content.Conversations, turn)
	}
	return content
}

// Render serializes the document. When encoding fails the plain description is returned instead.
func (c TicketContent) Render() (string, ContentKind) {
	raw, err := marshalContent(c)
	if err != nil {
		return c.Description, ContentKindPlain
	}
	return string(raw), ContentKindStructured
}

// ParseTicketContent decodes a stored content column according to its kind.
func ParseTicketContent(raw string, kind ContentKind) (TicketContent, error) {
	if kind == ContentKindPlain || strings.TrimSpace(raw) == "" {
		return TicketContent{Description: raw}, nil
	}
	var content TicketContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return TicketContent{}, err
	}
	return content, nil
}
