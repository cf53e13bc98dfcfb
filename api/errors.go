package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
	"taskboard/records"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var platformErr *records.PlatformError
	switch {
	case errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrInvalidDueDate),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrSubcategoryNotFound),
		errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &platformErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// failure writes err as a JSON error. notice is replaced by the title prompt
// for validation errors on the title.
func failure(c echo.Context, err error, notice string) error {
	status := statusFor(err)
	if errors.Is(err, domain.ErrTitleRequired) {
		notice = noticeNeedTitle
	}
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, errorResponse{Error: err.Error(), Notice: notice})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
