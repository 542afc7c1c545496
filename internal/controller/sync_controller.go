package controller

import (
	"notesync-be/internal/dto"
	"notesync-be/internal/pkg/serverutils"
	"notesync-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISyncController interface {
	RegisterRoutes(r fiber.Router)
	Sync(ctx *fiber.Ctx) error
}

type syncController struct {
	syncService service.ISyncService
	auth        fiber.Handler
}

func NewSyncController(syncService service.ISyncService, auth fiber.Handler) ISyncController {
	return &syncController{syncService: syncService, auth: auth}
}

func (c *syncController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/sync/v1")
	h.Use(c.auth, serverutils.DeviceMiddleware)
	h.Post("", c.Sync)
}

func (c *syncController) Sync(ctx *fiber.Ctx) error {
	var req dto.SyncRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	tenant := serverutils.TenantID(ctx)
	if req.TenantID != "" && req.TenantID != tenant {
		return fiber.NewError(fiber.StatusForbidden, "tenantId does not match token")
	}
	lastSync, err := req.LastSyncMillis()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	syncReq := service.SyncRequest{
		TenantID:  tenant,
		LastSync:  lastSync,
		DeviceID:  serverutils.DeviceOf(ctx).ID,
		Paginated: req.UseBatching || req.Limit != nil,
	}
	if syncReq.Paginated {
		if req.Limit != nil {
			syncReq.Limit = *req.Limit
		}
		if req.Offset != nil {
			syncReq.Offset = *req.Offset
		}
	}

	if req.UseBackgroundTask {
		jobID, err := c.syncService.SyncSinceDeferred(ctx.UserContext(), syncReq)
		if err != nil {
			return err
		}
		return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Sync scheduled", dto.DeferredResponse{LongJobID: jobID.String()}))
	}

	res, err := c.syncService.SyncSince(ctx.UserContext(), syncReq)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success sync", res))
}
