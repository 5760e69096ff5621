package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket workflow endpoints used by workers, auditors and operators.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	out := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(detail)})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// SubmitTranslation POST /tickets/:id/translation.
func (h *TicketsHandler) SubmitTranslation(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.SubmitTranslationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	translation, err := h.service.SubmitTranslation(c.UserContext(), id, service.TranslationInput{
		TargetLang:        req.TargetLang,
		TranslatedTitle:   req.TranslatedTitle,
		TranslatedContent: req.TranslatedContent,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTranslationResponse(translation)})
}

// SubmitReply POST /tickets/:id/reply.
func (h *TicketsHandler) SubmitReply(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.SubmitReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reply, err := h.service.SubmitReply(c.UserContext(), id, service.ReplyInput{
		ReplyLang:     req.ReplyLang,
		OriginalReply: req.OriginalReply,
		TargetReply:   req.TargetReply,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewReplyResponse(reply)})
}

// SubmitAudit POST /tickets/:id/audit. The auditor is the authenticated subject.
func (h *TicketsHandler) SubmitAudit(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("auditor required")
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.SubmitAuditRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	audit, err := h.service.SubmitAudit(c.UserContext(), id, principal.SubjectID, service.AuditInput{
		ReplyID:     req.ReplyID,
		AuditResult: req.AuditResult,
		AuditRemark: req.AuditRemark,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewAuditResponse(audit)})
}

// TriggerTranslation POST /tickets/:id/ai-translate.
func (h *TicketsHandler) TriggerTranslation(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.TriggerTranslation(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// TriggerReply POST /tickets/:id/ai-reply.
func (h *TicketsHandler) TriggerReply(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.TriggerReply(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateValidity POST /tickets/:id/valid.
func (h *TicketsHandler) UpdateValidity(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateValidityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.IsValid == nil {
		return apperrors.NewValidationError("is_valid is required", nil)
	}
	ticket, err := h.service.UpdateValidity(c.UserContext(), id, *req.IsValid)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.States = append(filter.States, domain.TicketState(strings.ToUpper(part)))
			}
		}
	}
	if externalID := strings.TrimSpace(c.Query("external_id")); externalID != "" {
		filter.ExternalID = &externalID
	}
	if subject := strings.TrimSpace(c.Query("subject")); subject != "" {
		filter.SearchTerm = &subject
	}
	if raw := c.Query("is_valid"); raw != "" {
		valid, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("is_valid must be true or false", map[string]any{"is_valid": raw})
		}
		filter.IsValid = &valid
	}
	var err error
	if filter.CreatedFrom, err = parseTimeQuery(c, "created_from", "created_after"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTimeQuery(c, "created_to", "created_before"); err != nil {
		return filter, err
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, apperrors.NewValidationError("limit must be a positive integer", map[string]any{"limit": raw})
		}
		filter.Limit = limit
	}
	return filter, nil
}

// parseTimeQuery reads the first of keys present on the query string.
func parseTimeQuery(c *fiber.Ctx, keys ...string) (*time.Time, error) {
	var key, raw string
	for _, key = range keys {
		if raw = c.Query(key); raw != "" {
			break
		}
	}
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewValidationError(key+" must be an RFC3339 timestamp", map[string]any{key: raw})
	}
	return &t, nil
}
