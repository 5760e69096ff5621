package repository

import (
	"context"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

type ticketReplyRepository struct {
	db DBTX
}

// NewTicketReplyRepository builds repository.
func NewTicketReplyRepository(db DBTX) TicketReplyRepository {
	return &ticketReplyRepository{db: db}
}

func (r *ticketReplyRepository) Create(ctx context.Context, reply *domain.TicketReply) error {
	const query = `
        INSERT INTO ticket_replies (ticket_id, reply_lang, original_reply, target_reply)
        VALUES ($1,$2,$3,$4)
        RETURNING id, is_selected, created_at`
	return r.db.QueryRow(ctx, query,
		reply.TicketID,
		reply.ReplyLang,
		reply.OriginalReply,
		reply.TargetReply,
	).Scan(&reply.ID, &reply.IsSelected, &reply.CreatedAt)
}

func (r *ticketReplyRepository) GetByID(ctx context.Context, ticketID, replyID int64) (*domain.TicketReply, error) {
	const query = `
        SELECT id, ticket_id, reply_lang, original_reply, target_reply, is_selected, created_at
        FROM ticket_replies WHERE id=$1 AND ticket_id=$2`
	var reply domain.TicketReply
	if err := r.db.QueryRow(ctx, query, replyID, ticketID).Scan(
		&reply.ID,
		&reply.TicketID,
		&reply.ReplyLang,
		&reply.OriginalReply,
		&reply.TargetReply,
		&reply.IsSelected,
		&reply.CreatedAt,
	); err != nil {
		return nil, translateErr(err)
	}
	return &reply, nil
}

func (r *ticketReplyRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketReply, error) {
	const query = `
        SELECT id, ticket_id, reply_lang, original_reply, target_reply, is_selected, created_at
        FROM ticket_replies WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketReply
	for rows.Next() {
		var reply domain.TicketReply
		if err := rows.Scan(
			&reply.ID,
			&reply.TicketID,
			&reply.ReplyLang,
			&reply.OriginalReply,
			&reply.TargetReply,
			&reply.IsSelected,
			&reply.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, reply)
	}
	return result, rows.Err()
}

func (r *ticketReplyRepository) MarkSelected(ctx context.Context, ticketID, replyID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE ticket_replies SET is_selected=(id=$1) WHERE ticket_id=$2`, replyID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
