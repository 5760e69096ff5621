package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

const ticketColumns = `id, external_id, subject, content, content_kind, source_lang, state, is_valid, created_at, updated_at`

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) UpsertByExternalID(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	const query = `
        INSERT INTO tickets (external_id, subject, content, content_kind, source_lang, state, is_valid)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (external_id) DO UPDATE SET
            subject=EXCLUDED.subject,
            content=EXCLUDED.content,
            content_kind=EXCLUDED.content_kind,
            updated_at=NOW()
        RETURNING id, source_lang, state, is_valid, created_at, updated_at, (xmax = 0) AS inserted`
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		ticket.ExternalID,
		ticket.Subject,
		ticket.Content,
		ticket.ContentKind,
		ticket.SourceLang,
		domain.TicketStatePendingTrans,
		ticket.IsValid,
	).Scan(
		&ticket.ID,
		&ticket.SourceLang,
		&ticket.State,
		&ticket.IsValid,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE external_id=$1`, externalID)
}

func (r *ticketRepository) UpdateState(ctx context.Context, id int64, state domain.TicketState) error {
	cmd, err := r.db.Exec(ctx, `UPDATE tickets SET state=$1, updated_at=NOW() WHERE id=$2`, state, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) UpdateValidity(ctx context.Context, id int64, valid bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE tickets SET is_valid=$1, updated_at=NOW() WHERE id=$2`, valid, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ExternalID != nil {
		args = append(args, *filter.ExternalID)
		clauses = append(clauses, fmt.Sprintf("external_id=$%d", len(args)))
	}
	if filter.IsValid != nil {
		args = append(args, *filter.IsValid)
		clauses = append(clauses, fmt.Sprintf("is_valid=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.SearchTerm))+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(subject) LIKE $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id DESC LIMIT %d`,
		ticketColumns, strings.Join(clauses, " AND "), filter.EffectiveLimit())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ExternalID,
		&ticket.Subject,
		&ticket.Content,
		&ticket.ContentKind,
		&ticket.SourceLang,
		&ticket.State,
		&ticket.IsValid,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, translateErr(err)
	}
	return &ticket, nil
}
