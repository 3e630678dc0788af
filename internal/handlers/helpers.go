// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
)

// MessageResponse is the JSON body of a successful action.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RenderMessage writes a translated success message.
func RenderMessage(c echo.Context, messageID string) error {
	return c.JSON(http.StatusOK, MessageResponse{
		Status:  "ok",
		Message: i18n.T(c.Request().Context(), messageID),
	})
}
