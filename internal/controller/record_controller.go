package controller

import (
	"context"

	"notesync-be/internal/dto"
	"notesync-be/internal/entity"
	"notesync-be/internal/pkg/serverutils"
	"notesync-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IRecordController interface {
	RegisterRoutes(r fiber.Router)
	Insert(ctx *fiber.Ctx) error
	UpsertBatch(ctx *fiber.Ctx) error
	UpdateMetadata(ctx *fiber.Ctx) error
	UpdateVector(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	DeleteMany(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Recent(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	QueryVector(ctx *fiber.Ctx) error
	QueryKeyword(ctx *fiber.Ctx) error
}

type recordController struct {
	writes  service.IDualWriteService
	queries service.IRecordQueryService
	auth    fiber.Handler
}

func NewRecordController(writes service.IDualWriteService, queries service.IRecordQueryService, auth fiber.Handler) IRecordController {
	return &recordController{writes: writes, queries: queries, auth: auth}
}

func (c *recordController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/records/v1")
	h.Use(c.auth, serverutils.DeviceMiddleware)
	h.Post("", c.Insert)
	h.Post("batch", c.UpsertBatch)
	h.Post("delete-many", c.DeleteMany)
	h.Get("recent", c.Recent)
	h.Post("list", c.List)
	h.Post("query/vector", c.QueryVector)
	h.Post("query/keyword", c.QueryKeyword)
	h.Get(":id", c.Show)
	h.Patch(":id/metadata", c.UpdateMetadata)
	h.Put(":id/vector", c.UpdateVector)
	h.Delete(":id", c.Delete)
}

// stamp sets tenant and device provenance on a record coming from a client.
func stamp(ctx *fiber.Ctx, rec *entity.Record) {
	rec.TenantID = serverutils.TenantID(ctx)
	device := serverutils.DeviceOf(ctx)
	if device.ID != "" {
		rec.LastUpdateDeviceID = device.ID
		rec.LastUpdateDevice = device.Type
	}
}

func (c *recordController) Insert(ctx *fiber.Ctx) error {
	var rec entity.Record
	if err := ctx.BodyParser(&rec); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	stamp(ctx, &rec)

	if err := c.writes.Insert(ctx.UserContext(), &rec); err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success insert record", fiber.Map{"uniqueId": rec.UniqueID}))
}

func (c *recordController) UpsertBatch(ctx *fiber.Ctx) error {
	var req dto.UpsertBatchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	tenant := serverutils.TenantID(ctx)
	for _, rec := range req.Records {
		stamp(ctx, rec)
	}

	if req.Background {
		jobID, err := c.writes.UpsertBatchDeferred(ctx.UserContext(), tenant, req.Records)
		if err != nil {
			return err
		}
		return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Batch upsert scheduled", dto.UpsertBatchResponse{LongJobID: jobID.String()}))
	}

	if err := c.writes.UpsertBatch(ctx.UserContext(), tenant, req.Records); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success upsert records", dto.UpsertBatchResponse{Count: len(req.Records)}))
}

func (c *recordController) UpdateMetadata(ctx *fiber.Ctx) error {
	var req dto.UpdateMetadataRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	device := serverutils.DeviceOf(ctx)
	if device.ID != "" {
		req.Updates.LastUpdateDeviceID = device.ID
		req.Updates.LastUpdateDevice = device.Type
	}
	if req.FullData != nil {
		stamp(ctx, req.FullData)
	}

	rec, err := c.writes.UpdateMetadata(ctx.UserContext(), serverutils.TenantID(ctx), ctx.Params("id"), &req.Updates, req.FullData)
	if err != nil {
		return err
	}
	rec.Vector = nil
	return ctx.JSON(serverutils.SuccessResponse("Success update metadata", rec))
}

func (c *recordController) UpdateVector(ctx *fiber.Ctx) error {
	var req dto.UpdateVectorRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	recordType, err := dto.ParseRecordType(req.RecordType)
	if err != nil {
		return err
	}

	err = c.writes.UpdateVector(ctx.UserContext(), service.VectorUpdate{
		TenantID:     serverutils.TenantID(ctx),
		UniqueID:     ctx.Params("id"),
		RecordType:   recordType,
		Vector:       req.Vector,
		Text:         req.Text,
		LastModified: req.LastModified,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update vector", fiber.Map{"uniqueId": ctx.Params("id")}))
}

func (c *recordController) Delete(ctx *fiber.Ctx) error {
	recordType, err := dto.ParseRecordType(ctx.Query("recordType"))
	if err != nil {
		return err
	}
	id := ctx.Params("id")
	if err := c.writes.Delete(ctx.UserContext(), serverutils.TenantID(ctx), id, recordType, ctx.Query("blobPath")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success delete record", dto.DeleteRecordResponse{UniqueIDs: []string{id}}))
}

func (c *recordController) DeleteMany(ctx *fiber.Ctx) error {
	var req dto.DeleteManyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	recordType, err := dto.ParseRecordType(req.RecordType)
	if err != nil {
		return err
	}

	if err := c.writes.DeleteMany(ctx.UserContext(), serverutils.TenantID(ctx), req.UniqueIDs, recordType, req.BlobPaths); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success delete records", dto.DeleteRecordResponse{UniqueIDs: req.UniqueIDs}))
}

func (c *recordController) Show(ctx *fiber.Ctx) error {
	rec, err := c.queries.Get(ctx.UserContext(), serverutils.TenantID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get record", rec))
}

func (c *recordController) Recent(ctx *fiber.Ctx) error {
	res, err := c.queries.Recent(ctx.UserContext(), service.RecordQuery{
		TenantID: serverutils.TenantID(ctx),
		Limit:    ctx.QueryInt("limit", 20),
		Offset:   ctx.QueryInt("offset", 0),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get recent records", res))
}

func (c *recordController) List(ctx *fiber.Ctx) error {
	var req dto.ListRecordsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	types, err := dto.RecordTypes(req.RecordTypes)
	if err != nil {
		return err
	}

	res, err := c.queries.List(ctx.UserContext(), service.RecordQuery{
		TenantID:    serverutils.TenantID(ctx),
		RecordTypes: types,
		TagIDs:      req.TagIDs,
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list records", res))
}

func (c *recordController) QueryVector(ctx *fiber.Ctx) error {
	return c.query(ctx, c.queries.QueryVector)
}

func (c *recordController) QueryKeyword(ctx *fiber.Ctx) error {
	return c.query(ctx, c.queries.QueryKeyword)
}

func (c *recordController) query(ctx *fiber.Ctx, run func(context.Context, service.RecordQuery) ([]*entity.Record, error)) error {
	var req dto.QueryRecordsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	types, err := dto.RecordTypes(req.RecordTypes)
	if err != nil {
		return err
	}

	res, err := run(ctx.UserContext(), service.RecordQuery{
		TenantID:    serverutils.TenantID(ctx),
		RecordTypes: types,
		TagIDs:      req.TagIDs,
		Text:        req.Query,
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success query records", res))
}
