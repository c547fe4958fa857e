package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/middleware"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/service"
	"github.com/vocaldocs/api/pkg/response"
)

type UploadHandler struct {
	service   *service.IntakeService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.IntakeService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /api/upload
// @Summary      Submit a document or text
// @Description  Accepts a base64 PDF with a page range, or plain text, and starts conversion to speech
// @Tags         Upload
// @Accept       json
// @Produce      json
// @Param        request body model.UploadRequest true "PDF or text upload"
// @Success      200 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload [post]
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	var req model.UploadRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	owner := middleware.GetOwner(c)

	var job *model.Job
	var err error
	if req.IsPDF() {
		pdf := req.PDF()
		if err := h.validator.Struct(&pdf); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
		job, err = h.service.SubmitPDF(c.UserContext(), owner, pdf)
	} else {
		text := req.TextInput()
		if err := h.validator.Struct(&text); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
		job, err = h.service.SubmitText(c.UserContext(), owner, text)
	}
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.UploadResponse{
		Message:      "Request submitted successfully",
		ReferenceKey: job.ReferenceKey,
	})
}
