package repository

import (
	"context"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

type ticketTranslationRepository struct {
	db DBTX
}

// NewTicketTranslationRepository builds repository.
func NewTicketTranslationRepository(db DBTX) TicketTranslationRepository {
	return &ticketTranslationRepository{db: db}
}

func (r *ticketTranslationRepository) Upsert(ctx context.Context, translation *domain.TicketTranslation) error {
	const query = `
        INSERT INTO ticket_translations (ticket_id, target_lang, translated_title, translated_content)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id, target_lang) DO UPDATE SET
            translated_title=EXCLUDED.translated_title,
            translated_content=EXCLUDED.translated_content,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		translation.TicketID,
		translation.TargetLang,
		translation.TranslatedTitle,
		translation.TranslatedContent,
	).Scan(&translation.ID, &translation.CreatedAt, &translation.UpdatedAt)
}

func (r *ticketTranslationRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketTranslation, error) {
	const query = `
        SELECT id, ticket_id, target_lang, translated_title, translated_content, created_at, updated_at
        FROM ticket_translations WHERE ticket_id=$1 ORDER BY target_lang ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketTranslation
	for rows.Next() {
		var tr domain.TicketTranslation
		if err := rows.Scan(
			&tr.ID,
			&tr.TicketID,
			&tr.TargetLang,
			&tr.TranslatedTitle,
			&tr.TranslatedContent,
			&tr.CreatedAt,
			&tr.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}
