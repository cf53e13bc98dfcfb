package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/ai"
	"taskboard/domain"
	"taskboard/records"
)

const (
	maxBodySize    = 64 << 10
	dedupeTimeout  = 2 * time.Second
	idempotencyHdr = "Idempotency-Key"
)

// Deps holds what the routes need. Deduper, Describer and Stream are optional.
type Deps struct {
	Tasks      TaskService
	Categories CategoryService
	Describer  ai.Describer
	Auth       Authenticator
	Deduper    Deduper
	Stream     *Stream
	Logger     *log.Logger
	Now        func() time.Time
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Auth == nil {
		d.Auth = NoAuth{}
	}
	e.GET("/healthz", healthz())

	g := e.Group("/api", RequireUser(d.Auth))
	g.GET("/tasks", getTasks(d.Tasks, d.Logger, d.Now))
	g.POST("/tasks", createTask(d.Tasks, d.Deduper))
	g.POST("/tasks/reorder", reorderTasks(d.Tasks))
	g.POST("/tasks/describe", describeTask(d.Describer))
	g.GET("/tasks/:id", getTask(d.Tasks))
	g.PATCH("/tasks/:id", updateTask(d.Tasks))
	g.DELETE("/tasks/:id", deleteTask(d.Tasks))
	g.POST("/tasks/:id/toggle", toggleTask(d.Tasks))

	g.GET("/categories", getCategories(d.Categories))
	g.GET("/categories/:id", getCategory(d.Categories))
	g.GET("/subcategories", getSubcategories(d.Categories))
	g.POST("/subcategories", createSubcategory(d.Categories))
	g.PATCH("/subcategories/:id", updateSubcategory(d.Categories))
	g.DELETE("/subcategories/:id", deleteSubcategory(d.Categories))

	if d.Stream != nil {
		g.GET("/stream", d.Stream.Handler())
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// decodeBody reads a JSON body with sonic, rejecting unknown fields.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func getTasks(tasks TaskService, logger *log.Logger, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newTaskRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		var cause error
		defer func() {
			if cause == nil {
				cause = err
			}
			metrics.Log(c.Response().Status, cause)
		}()

		category := strings.TrimSpace(c.QueryParam("category"))
		if domain.IsAllCategoryID(category) {
			category = ""
		}
		query := strings.TrimSpace(c.QueryParam("q"))
		metrics.SetFiltered(category != "" || query != "")

		fetchStart := time.Now()
		all, fetchErr := tasks.GetAll(spanCtx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			cause = fetchErr
			return failure(c, fetchErr, noticeLoadFailed)
		}

		visible := domain.SortTasks(domain.FilterTasks(all, category, query))
		metrics.SetTaskCounts(len(all), len(visible))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boardResponse{
			Tasks: visible,
			Stats: domain.ComputeStats(all, visible, now()),
		})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(tasks TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		task, err := tasks.GetByID(c.Request().Context(), id)
		if err != nil {
			return failure(c, err, "")
		}
		return c.JSON(http.StatusOK, taskResponse{Task: task})
	}
}

func createTask(tasks TaskService, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.TaskInput
		if err := decodeBody(c, &in); err != nil {
			return badRequest(c, "invalid body")
		}
		ctx := c.Request().Context()

		key := strings.TrimSpace(c.Request().Header.Get(idempotencyHdr))
		if key == "" || deduper == nil {
			return respondCreated(c, tasks, in)
		}

		userID := currentUser(c)
		owned, err := deduper.Reserve(ctx, userID, key)
		if err != nil {
			// Redis trouble must not block task creation.
			c.Logger().Warnf("idempotency reserve failed: %v", err)
			return respondCreated(c, tasks, in)
		}
		if !owned {
			return replayCreated(c, tasks, deduper, userID, key)
		}

		task, err := tasks.Create(ctx, in)
		if err != nil {
			rbCtx, cancel := context.WithTimeout(context.Background(), dedupeTimeout)
			if rerr := deduper.Remove(rbCtx, userID, key); rerr != nil {
				c.Logger().Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, userID)
			}
			cancel()
			return failure(c, err, noticeSaveFailed)
		}
		if err := deduper.Complete(ctx, userID, key, task.ID); err != nil {
			c.Logger().Warnf("idempotency complete failed: %v", err)
		}
		return c.JSON(http.StatusCreated, taskResponse{Task: task, Notice: noticeCreated})
	}
}

func respondCreated(c echo.Context, tasks TaskService, in domain.TaskInput) error {
	task, err := tasks.Create(c.Request().Context(), in)
	if err != nil {
		return failure(c, err, noticeSaveFailed)
	}
	return c.JSON(http.StatusCreated, taskResponse{Task: task, Notice: noticeCreated})
}

// replayCreated answers a repeated Idempotency-Key with the task created by
// the first request.
func replayCreated(c echo.Context, tasks TaskService, deduper Deduper, userID, key string) error {
	ctx := c.Request().Context()
	id, done, err := deduper.Lookup(ctx, userID, key)
	if err != nil {
		return failure(c, err, noticeSaveFailed)
	}
	if !done {
		return c.JSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key is in progress"})
	}
	task, err := tasks.GetByID(ctx, id)
	if err != nil {
		return failure(c, err, "")
	}
	return c.JSON(http.StatusOK, taskResponse{Task: task, Notice: noticeCreated})
}

func updateTask(tasks TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return badRequest(c, "invalid body")
		}
		task, err := tasks.Update(c.Request().Context(), id, patch)
		if err != nil {
			return failure(c, err, noticeSaveFailed)
		}
		return c.JSON(http.StatusOK, taskResponse{Task: task, Notice: noticeUpdated})
	}
}

func deleteTask(tasks TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if err := tasks.Delete(c.Request().Context(), id); err != nil {
			return failure(c, err, noticeDeleteFail)
		}
		return c.JSON(http.StatusOK, map[string]string{"notice": noticeDeleted})
	}
}

func toggleTask(tasks TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		task, err := tasks.ToggleComplete(c.Request().Context(), id)
		if err != nil {
			return failure(c, err, noticeToggleFail)
		}
		return c.JSON(http.StatusOK, taskResponse{Task: task, Notice: noticeUpdated})
	}
}

func reorderTasks(tasks TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		for _, id := range req.IDs {
			if id <= 0 {
				return badRequest(c, "invalid id")
			}
		}
		updated, err := tasks.Reorder(c.Request().Context(), req.IDs)
		var batchErr *records.BatchError
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, reorderResponse{Tasks: updated, Notice: noticeReordered})
		case errors.As(err, &batchErr) && len(updated) > 0:
			// Partial success: report both sides.
			return c.JSON(http.StatusOK, reorderResponse{Tasks: updated, Failed: batchErr.Messages(), Notice: noticeReordered})
		}
		return failure(c, err, noticeReorderFail)
	}
}
