package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/middleware"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/service"
	"github.com/vocaldocs/api/pkg/response"
)

type TrackHandler struct {
	service   *service.TrackService
	validator *validator.Validate
}

func NewTrackHandler(svc *service.TrackService, v *validator.Validate) *TrackHandler {
	return &TrackHandler{
		service:   svc,
		validator: v,
	}
}

// List handles GET /api/track
// @Summary      List my requests
// @Description  Lists the caller's jobs, newest first
// @Tags         Track
// @Produce      json
// @Success      200 {object} model.TrackListResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/track [get]
func (h *TrackHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.UserContext(), middleware.GetOwner(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// Get handles GET /api/track/:referenceKey
// @Summary      Get one request
// @Tags         Track
// @Produce      json
// @Param        referenceKey path string true "Reference key"
// @Success      200 {object} model.JobSummary
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/track/{referenceKey} [get]
func (h *TrackHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), middleware.GetOwner(c), c.Params("referenceKey"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, service.Summarize(job))
}

// Download handles POST /api/track/download
// @Summary      Get a download link
// @Description  Returns a presigned URL for the request's audio, valid for one hour
// @Tags         Track
// @Accept       json
// @Produce      json
// @Param        request body model.DownloadRequest true "Download request"
// @Success      200 {object} model.DownloadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/track/download [post]
func (h *TrackHandler) Download(c *fiber.Ctx) error {
	var req model.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.PresignDownload(c.UserContext(), middleware.GetOwner(c), req.ReferenceKey)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}
