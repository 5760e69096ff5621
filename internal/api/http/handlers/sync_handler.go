package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/service"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// SyncHandler exposes manual sync and its configuration.
type SyncHandler struct {
	engine *service.SyncEngine
	config *service.SyncConfigService
}

// NewSyncHandler constructs handler.
func NewSyncHandler(engine *service.SyncEngine, config *service.SyncConfigService) *SyncHandler {
	return &SyncHandler{engine: engine, config: config}
}

// Run POST /sync. A busy or failed run still answers 200 with success=false.
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	outcome := h.engine.Run(c.UserContext(), domain.TriggerManual)
	return c.JSON(fiber.Map{"data": outcome})
}

// Status GET /sync/status.
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	state, err := h.engine.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSyncStatusResponse(state)})
}

// GetConfig GET /sync/config.
func (h *SyncHandler) GetConfig(c *fiber.Ctx) error {
	settings, err := h.config.Settings(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSyncConfigResponse(settings)})
}

// UpdateConfig PUT /sync/config.
func (h *SyncHandler) UpdateConfig(c *fiber.Ctx) error {
	var req dto.UpdateSyncConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SyncCron == nil && req.SyncEnabled == nil {
		return apperrors.NewValidationError("sync_cron or sync_enabled required", nil)
	}
	settings, err := h.config.Update(c.UserContext(), service.SyncSettingsUpdate{
		Cron:    req.SyncCron,
		Enabled: req.SyncEnabled,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSyncConfigResponse(settings)})
}
