package controller

import (
	"notesync-be/internal/dto"
	"notesync-be/internal/pkg/serverutils"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IJobController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
}

type jobController struct {
	longJobService service.ILongJobService
	auth           fiber.Handler
}

func NewJobController(longJobService service.ILongJobService, auth fiber.Handler) IJobController {
	return &jobController{longJobService: longJobService, auth: auth}
}

func (c *jobController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/jobs/v1")
	h.Use(c.auth)
	h.Get(":id", c.Show)
}

func (c *jobController) Show(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job id")
	}

	job, err := c.longJobService.Get(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	// other tenants' jobs are reported as missing
	if job.OwnerID != serverutils.TenantID(ctx) {
		return contract.ErrJobNotFound
	}

	if ctx.QueryBool("full", false) {
		return ctx.JSON(serverutils.SuccessResponse("Success get job", job))
	}
	res := dto.JobStatusResponse{Status: string(job.Status)}
	if job.Status.Terminal() {
		res.Results = job.Results
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get job", res))
}
