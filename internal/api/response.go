package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the JSON envelope of every /api response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func dataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func successResponse(c echo.Context, data interface{}) error {
	return dataResponse(c, http.StatusOK, data)
}

func badRequestResponse(c echo.Context, data interface{}) error {
	return dataResponse(c, http.StatusBadRequest, data)
}

func notFoundResponse(c echo.Context, data interface{}) error {
	return dataResponse(c, http.StatusNotFound, data)
}

func internalErrorResponse(c echo.Context) error {
	return dataResponse(c, http.StatusInternalServerError, "Something went wrong")
}
