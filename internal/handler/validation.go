package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/vocaldocs/api/internal/service"
	"github.com/vocaldocs/api/pkg/response"
)

// NewValidator reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// serviceError maps service failures onto responses. Request rejections are
// 400, everything unexpected is a 500 carrying the error text.
func serviceError(c *fiber.Ctx, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return response.ValidationError(c, ve.Message, map[string]string{ve.Field: ve.Message})
	}
	if errors.Is(err, service.ErrAccessDenied) {
		return response.Forbidden(c, "Access denied")
	}
	return response.ServiceError(c, err.Error())
}
