package repository

import (
	"context"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

type ticketAuditRepository struct {
	db DBTX
}

// NewTicketAuditRepository builds repository.
func NewTicketAuditRepository(db DBTX) TicketAuditRepository {
	return &ticketAuditRepository{db: db}
}

func (r *ticketAuditRepository) Create(ctx context.Context, audit *domain.TicketAudit) error {
	const query = `
        INSERT INTO ticket_audits (ticket_id, reply_id, audit_result, audit_remark, auditor_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		audit.TicketID,
		audit.ReplyID,
		audit.AuditResult,
		audit.AuditRemark,
		audit.AuditorID,
	).Scan(&audit.ID, &audit.CreatedAt)
}

func (r *ticketAuditRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketAudit, error) {
	const query = `
        SELECT id, ticket_id, reply_id, audit_result, audit_remark, auditor_id, created_at
        FROM ticket_audits WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAudit
	for rows.Next() {
		var audit domain.TicketAudit
		if err := rows.Scan(
			&audit.ID,
			&audit.TicketID,
			&audit.ReplyID,
			&audit.AuditResult,
			&audit.AuditRemark,
			&audit.AuditorID,
			&audit.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, audit)
	}
	return result, rows.Err()
}
