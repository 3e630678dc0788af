// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RenderError writes a translated error message with the given status code.
func RenderError(c echo.Context, code int, messageID string) error {
	return c.JSON(code, ErrorResponse{
		Error: i18n.T(c.Request().Context(), messageID),
	})
}

// BadRequest writes a 400 response.
func BadRequest(c echo.Context, messageID string) error {
	return RenderError(c, http.StatusBadRequest, messageID)
}

// Unauthorized writes a 401 response.
func Unauthorized(c echo.Context) error {
	return RenderError(c, http.StatusUnauthorized, "error_unauthorized")
}

// InternalServerError writes a 500 response without leaking the cause.
func InternalServerError(c echo.Context) error {
	return RenderError(c, http.StatusInternalServerError, "error_generic")
}
