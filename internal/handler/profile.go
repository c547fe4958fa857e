package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/middleware"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/service"
	"github.com/vocaldocs/api/internal/store"
	"github.com/vocaldocs/api/pkg/response"
)

type ProfileHandler struct {
	service   *service.ProfileService
	validator *validator.Validate
}

func NewProfileHandler(svc *service.ProfileService, v *validator.Validate) *ProfileHandler {
	return &ProfileHandler{
		service:   svc,
		validator: v,
	}
}

// Save handles POST /api/profile
// @Summary      Save my profile
// @Tags         Profile
// @Accept       json
// @Produce      json
// @Param        request body model.ProfileRequest true "Profile"
// @Success      200 {object} model.Profile
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/profile [post]
func (h *ProfileHandler) Save(c *fiber.Ctx) error {
	var req model.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	profile, err := h.service.Save(c.UserContext(), service.Identity{
		UserID:   middleware.GetUserID(c),
		Email:    middleware.GetUserEmail(c),
		Username: middleware.GetUserName(c),
	}, req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, profile)
}

// Get handles GET /api/profile
// @Summary      Get my profile
// @Tags         Profile
// @Produce      json
// @Success      200 {object} model.Profile
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/profile [get]
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	profile, err := h.service.Get(c.UserContext(), middleware.GetUserID(c))
	if errors.Is(err, store.ErrProfileNotFound) {
		return response.NotFound(c, "Profile not found")
	}
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, profile)
}
