package domain

// TaskKind selects the worker pipeline a task is routed to.
type TaskKind string

const (
	TaskTranslate TaskKind = "translate"
	TaskReply     TaskKind = "reply"
	TaskAudit     TaskKind = "audit"
)

// Topic returns the broker routing key for the kind.
func (k TaskKind) Topic() string {
	return "ticket.task." + string(k)
}

// TaskPayload is the ticket snapshot carried by a task.
type TaskPayload struct {
	ExternalID string `json:"externalId"`
	Subject    string `json:"subject"`
	Content    string `json:"content"`
}

// TaskEnvelope is the message published for out-of-process workers.
type TaskEnvelope struct {
	MsgID     string      `json:"msgId"`
	TicketID  int64       `json:"ticketId"`
	Timestamp int64       `json:"timestamp"`
	Payload   TaskPayload `json:"payload"`
}
