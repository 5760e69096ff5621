package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/workflow"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// TicketService applies worker results and operator actions to tickets.
type TicketService struct {
	store      repository.Store
	dispatcher TaskDispatcher
	replies    ReplyPusher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher TaskDispatcher
	Replies    ReplyPusher
	Logger     *zap.Logger
}

// TranslationInput is a translation reported by a worker.
type TranslationInput struct {
	TargetLang        string
	TranslatedTitle   string
	TranslatedContent string
}

// ReplyInput is a reply draft reported by a worker.
type ReplyInput struct {
	ReplyLang     string
	OriginalReply string
	TargetReply   string
}

// AuditInput is a verdict reported by an auditor.
type AuditInput struct {
	ReplyID     int64
	AuditResult domain.AuditResult
	AuditRemark string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		replies:    deps.Replies,
		logger:     deps.Logger,
	}
}

// GetTicket returns the ticket with its translations, replies and audits.
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64) (*domain.TicketDetail, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.mapTicketErr(err, ticketID)
	}
	translations, err := s.store.Translations().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	replies, err := s.store.Replies().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	audits, err := s.store.Audits().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &domain.TicketDetail{Ticket: ticket, Translations: translations, Replies: replies, Audits: audits}, nil
}

// ListTickets returns tickets matching filter, most recently updated first.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	for _, state := range filter.States {
		if !state.Valid() {
			return nil, apperrors.NewValidationError("unknown ticket state", map[string]any{"status": state})
		}
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedTo.Before(*filter.CreatedFrom) {
		return nil, apperrors.NewValidationError("created_to must not precede created_from", nil)
	}
	tickets, err := s.store.Tickets().ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListHistory returns the ticket's state transitions, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	if _, err := s.store.Tickets().GetByID(ctx, ticketID); err != nil {
		return nil, s.mapTicketErr(err, ticketID)
	}
	history, err := s.store.History().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// SubmitTranslation stores the translation for its language and moves the ticket to PENDING_REPLY.
// A ticket already in PENDING_REPLY keeps its state and no reply task is dispatched again.
func (s *TicketService) SubmitTranslation(ctx context.Context, ticketID int64, input TranslationInput) (*domain.TicketTranslation, error) {
	lang := strings.TrimSpace(input.TargetLang)
	if lang == "" {
		return nil, apperrors.NewValidationError("target_lang is required", nil)
	}
	translation := &domain.TicketTranslation{
		TicketID:          ticketID,
		TargetLang:        lang,
		TranslatedTitle:   input.TranslatedTitle,
		TranslatedContent: input.TranslatedContent,
	}
	_, err := s.transition(ctx, ticketID, workflow.EventTranslationSubmitted, func(ctx context.Context, tx repository.Store, _ *domain.Ticket) error {
		return tx.Translations().Upsert(ctx, translation)
	})
	if err != nil {
		return nil, err
	}
	return translation, nil
}

// SubmitReply stores a new reply draft and queues it for audit.
func (s *TicketService) SubmitReply(ctx context.Context, ticketID int64, input ReplyInput) (*domain.TicketReply, error) {
	if strings.TrimSpace(input.TargetReply) == "" {
		return nil, apperrors.NewValidationError("target_reply is required", nil)
	}
	reply := &domain.TicketReply{
		TicketID:      ticketID,
		ReplyLang:     strings.TrimSpace(input.ReplyLang),
		OriginalReply: input.OriginalReply,
		TargetReply:   input.TargetReply,
	}
	_, err := s.transition(ctx, ticketID, workflow.EventReplySubmitted, func(ctx context.Context, tx repository.Store, _ *domain.Ticket) error {
		return tx.Replies().Create(ctx, reply)
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// SubmitAudit appends a verdict. PASS completes the ticket, selects the reply and pushes it externally.
// Any other verdict sends the ticket back for a new reply.
func (s *TicketService) SubmitAudit(ctx context.Context, ticketID int64, auditorID string, input AuditInput) (*domain.TicketAudit, error) {
	if !input.AuditResult.Valid() {
		return nil, apperrors.NewValidationError("audit_result must be PASS or REJECT", map[string]any{"audit_result": input.AuditResult})
	}
	if input.ReplyID <= 0 {
		return nil, apperrors.NewValidationError("reply_id is required", nil)
	}

	audit := &domain.TicketAudit{
		TicketID:    ticketID,
		ReplyID:     input.ReplyID,
		AuditResult: input.AuditResult,
		AuditRemark: input.AuditRemark,
		AuditorID:   auditorID,
	}
	var selected *domain.TicketReply
	out, err := s.transition(ctx, ticketID, workflow.AuditEvent(input.AuditResult), func(ctx context.Context, tx repository.Store, _ *domain.Ticket) error {
		reply, err := tx.Replies().GetByID(ctx, ticketID, input.ReplyID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("reply", map[string]any{"ticket_id": ticketID, "reply_id": input.ReplyID})
		}
		if err != nil {
			return err
		}
		if err := tx.Audits().Create(ctx, audit); err != nil {
			return err
		}
		if input.AuditResult != domain.AuditResultPass {
			return nil
		}
		if err := tx.Replies().MarkSelected(ctx, ticketID, reply.ID); err != nil {
			return err
		}
		reply.IsSelected = true
		selected = reply
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.decision.Action == workflow.ActionPushReply && selected != nil {
		s.pushReply(ctx, out.ticket, selected)
	}
	return audit, nil
}

// TriggerTranslation marks the ticket TRANSLATING and dispatches a translation task.
func (s *TicketService) TriggerTranslation(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	out, err := s.transition(ctx, ticketID, workflow.EventTranslationRequested, nil)
	if err != nil {
		return nil, err
	}
	return out.ticket, nil
}

// TriggerReply marks the ticket REPLYING and dispatches a reply task.
func (s *TicketService) TriggerReply(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	out, err := s.transition(ctx, ticketID, workflow.EventReplyRequested, nil)
	if err != nil {
		return nil, err
	}
	return out.ticket, nil
}

// UpdateValidity flags the ticket as valid or invalid for the pipeline. State is not changed.
func (s *TicketService) UpdateValidity(ctx context.Context, ticketID int64, valid bool) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.store.WithinTicket(ctx, ticketID, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Tickets().UpdateValidity(ctx, ticketID, valid); err != nil {
			return err
		}
		var err error
		ticket, err = tx.Tickets().GetByID(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, s.mapTicketErr(err, ticketID)
	}
	return ticket, nil
}

type transitionResult struct {
	ticket   *domain.Ticket
	decision workflow.Decision
}

type transitionFunc func(ctx context.Context, tx repository.Store, ticket *domain.Ticket) error

// transition runs apply and the state change for event under the ticket's single-writer scope,
// then dispatches the resulting task once the scope has committed.
func (s *TicketService) transition(ctx context.Context, ticketID int64, event workflow.Event, apply transitionFunc) (*transitionResult, error) {
	out := &transitionResult{}
	err := s.store.WithinTicket(ctx, ticketID, func(ctx context.Context, tx repository.Store) error {
		ticket, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, ticket); err != nil {
				return err
			}
		}
		decision, err := workflow.Decide(ticket.State, event)
		if err != nil {
			return err
		}
		out.decision = decision
		out.ticket = ticket
		if decision.NoOp {
			return nil
		}
		if decision.Changed() {
			if err := tx.Tickets().UpdateState(ctx, ticketID, decision.Next); err != nil {
				return err
			}
			ticket.State = decision.Next
		}
		return recordHistory(ctx, tx, ticketID, event, &decision.From, decision.Next)
	})
	if err != nil {
		return nil, s.mapTicketErr(err, ticketID)
	}

	if out.decision.NoOp {
		s.logger.Info("transition absorbed",
			zap.Int64("ticket_id", ticketID),
			zap.String("event", string(event)),
			zap.String("state", string(out.decision.From)),
		)
		return out, nil
	}
	s.logger.Info("ticket transitioned",
		zap.Int64("ticket_id", ticketID),
		zap.String("event", string(event)),
		zap.String("from", string(out.decision.From)),
		zap.String("to", string(out.decision.Next)),
	)
	if kind, ok := out.decision.Action.TaskKind(); ok {
		if err := s.dispatcher.Dispatch(ctx, kind, out.ticket.Clone()); err != nil {
			s.logger.Warn("task not published, ticket state kept", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
	}
	return out, nil
}

func (s *TicketService) pushReply(ctx context.Context, ticket *domain.Ticket, reply *domain.TicketReply) {
	if s.replies == nil {
		return
	}
	if err := s.replies.PushReply(ctx, ticket.ExternalID, reply.TargetReply); err != nil {
		s.logger.Error("push reply to external service",
			zap.Int64("ticket_id", ticket.ID),
			zap.Int64("reply_id", reply.ID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("reply pushed to external service", zap.Int64("ticket_id", ticket.ID), zap.Int64("reply_id", reply.ID))
}

func (s *TicketService) mapTicketErr(err error, ticketID int64) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if errors.Is(err, workflow.ErrUnknownState) {
		return apperrors.NewInternalError(fmt.Errorf("ticket %d: %w", ticketID, err))
	}
	return apperrors.MapError(err)
}
