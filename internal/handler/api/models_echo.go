package api

import (
	"errors"
	"net/http"
	"time"

	models "RevSight/internal/domain/models"
	domrepo "RevSight/internal/domain/repository"
	"RevSight/internal/services/drift"
	"RevSight/internal/usecase"
	xhttp "RevSight/pkg/http"
	xlogger "RevSight/pkg/logger"
	"RevSight/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ModelsEchoHandler exposes the training, registry and drift operations over
// HTTP. It is a thin trigger surface: all semantics live in the usecases.
type ModelsEchoHandler struct {
	logger   *xlogger.Logger
	training *usecase.TrainingUseCase
	catalog  *usecase.ModelCatalogUseCase
	drift    *usecase.DriftUseCase
	queue    queue.QueueService
	now      func() time.Time
}

func NewModelsEchoHandler(
	logger *xlogger.Logger,
	training *usecase.TrainingUseCase,
	catalog *usecase.ModelCatalogUseCase,
	driftUC *usecase.DriftUseCase,
	q queue.QueueService,
) *ModelsEchoHandler {
	return &ModelsEchoHandler{
		logger:   logger,
		training: training,
		catalog:  catalog,
		drift:    driftUC,
		queue:    q,
		now:      time.Now,
	}
}

func (h *ModelsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/train", h.Train)
	g.GET("/models", h.ListModels)
	g.GET("/models/:version", h.GetModel)
	g.POST("/models/:version/promote", h.Promote)
	g.GET("/models/:version/drift", h.Drift)
	g.GET("/models/compare", h.Compare)
}

// Train runs a training job. Async requests are queued and acknowledged;
// sync requests block until the run finishes and return the full result.
func (h *ModelsEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Async {
		err := h.queue.PublishMessage(c.Request().Context(), usecase.RetrainJobType, usecase.RetrainPayload{
			Symbols:      req.Symbols,
			LookbackDays: req.LookbackDays,
			Reason:       "api request",
			Promote:      true,
		})
		if err != nil {
			h.logger.Error("enqueue train job error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
	}

	result, err := h.training.Train(c.Request().Context(), usecase.TrainParams{
		Symbols:      req.Symbols,
		LookbackDays: req.LookbackDays,
		Timeframe:    domrepo.NormalizeTimeframe(req.TF),
		Promote:      true,
	})
	if err != nil {
		h.logger.Error("train usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if !result.Accepted {
		// structured rejection: the run worked, no candidate was promotable
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return xhttp.SuccessResponse(c, result)
}

func (h *ModelsEchoHandler) ListModels(c echo.Context) error {
	req := &models.ListModelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.catalog.List(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("list models error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ModelsEchoHandler) GetModel(c echo.Context) error {
	req := &models.PromoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.catalog.Get(c.Request().Context(), req.Version)
	if err != nil {
		if errors.Is(err, domrepo.ErrVersionNotFound) || errors.Is(err, domrepo.ErrNoCurrentVersion) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("get model error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ModelsEchoHandler) Promote(c echo.Context) error {
	req := &models.PromoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.catalog.Promote(c.Request().Context(), req.Version); err != nil {
		if errors.Is(err, domrepo.ErrVersionNotFound) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("promote error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"promoted": req.Version})
}

func (h *ModelsEchoHandler) Drift(c echo.Context) error {
	req := &models.DriftRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := xhttp.ParseTimeDefault(req.To, h.now().UTC())
	window := models.DriftWindow{
		From: xhttp.ParseTimeDefault(req.From, to.Add(-time.Duration(req.WindowMinutes)*time.Minute)),
		To:   to,
	}
	report, err := h.drift.Check(c.Request().Context(), req.Version, window)
	if err != nil {
		if errors.Is(err, domrepo.ErrVersionNotFound) || errors.Is(err, domrepo.ErrNoCurrentVersion) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		if errors.Is(err, drift.ErrNoReference) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("drift usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *ModelsEchoHandler) Compare(c echo.Context) error {
	req := &models.CompareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.catalog.Compare(c.Request().Context(), req.VersionA, req.VersionB)
	if err != nil {
		if errors.Is(err, domrepo.ErrVersionNotFound) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("compare usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
