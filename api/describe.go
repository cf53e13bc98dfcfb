package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/ai"
	"taskboard/domain"
)

// DescribeRoute is the path served by the description function.
const DescribeRoute = "/api/generate-task-description"

// describeTask proxies POST /api/tasks/describe to the configured describer.
func describeTask(describer ai.Describer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ai.DescribeRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		var err error
		var desc string
		if describer == nil {
			err = ai.ErrNotConfigured
		} else {
			desc, err = describer.Describe(c.Request().Context(), req.Title)
		}
		if err != nil {
			return c.JSON(describeStatus(err), errorResponse{Error: err.Error(), Notice: ai.Notice(err)})
		}
		return c.JSON(http.StatusOK, describeResponse{Description: desc, Notice: noticeDescribed})
	}
}

func describeStatus(err error) int {
	var fnErr *ai.FunctionError
	var svcErr *ai.ServiceError
	switch {
	case errors.Is(err, domain.ErrTitleRequired):
		return http.StatusBadRequest
	case errors.As(err, &fnErr), errors.As(err, &svcErr), errors.Is(err, ai.ErrInvalidResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RegisterFunction wires the description function served by cmd/describe-fn.
func RegisterFunction(e *echo.Echo, describer ai.Describer) {
	e.POST(DescribeRoute, generateDescription(describer))
	e.GET("/healthz", healthz())
}

// generateDescription answers {title} with {success, description} or
// {success:false, error}. Only a string title is accepted.
func generateDescription(describer ai.Describer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body struct {
			Title any `json:"title"`
		}
		raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
		if err == nil {
			err = sonic.Unmarshal(raw, &body)
		}
		if err != nil {
			log.WithError(err).Error("error generating task description")
			return c.JSON(http.StatusInternalServerError, ai.DescribeResponse{Error: ai.MsgInternal})
		}
		title, ok := body.Title.(string)
		if !ok || strings.TrimSpace(title) == "" {
			return c.JSON(http.StatusBadRequest, ai.DescribeResponse{Error: ai.MsgTitleRequired})
		}

		desc, err := describer.Describe(c.Request().Context(), title)
		if err == nil && strings.TrimSpace(desc) == "" {
			err = ai.ErrEmptyContent
		}
		if err != nil {
			status, msg := ai.Outcome(err)
			if status >= http.StatusInternalServerError {
				log.WithError(err).Error("error generating task description")
			}
			return c.JSON(status, ai.DescribeResponse{Error: msg})
		}
		return c.JSON(http.StatusOK, ai.DescribeResponse{Success: true, Description: desc})
	}
}
