package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"todogenie-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps, logger *log.Logger) {
	e.POST(SubtasksRoute, generateSubtasks(deps.Subtasks, deps.Auth, logger))
	e.POST(TranslateRoute, translate(deps.Translations, deps.Auth, logger))
	e.GET("/healthz", healthz(deps.Store))
}

func healthz(store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusServiceUnavailable, "store unavailable")
		}
		return c.String(http.StatusOK, "ok")
	}
}

func generateSubtasks(svc SubtaskGenerator, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, SubtasksRoute, subtasksEventName)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.Fail("auth", authErr)
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: errUnauthorized})
		}

		var req generateSubtasksRequest
		if msg := decodeBody(c, &req); msg != "" {
			metrics.Fail("decode", nil)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
		}
		if strings.TrimSpace(req.TaskID) == "" {
			metrics.Fail("validate", nil)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: errTaskIDRequired})
		}
		metrics.Set("subtasks.rerun", req.Rerun)

		serviceStart := time.Now()
		inserted, genErr := svc.Generate(ctx, userID, domain.GenerateSubtasksRequest{
			TaskID:      req.TaskID,
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Rerun:       req.Rerun,
		})
		metrics.ObserveService(time.Since(serviceStart))
		if genErr != nil {
			if errors.Is(genErr, domain.ErrModelNotConfigured) {
				metrics.Fail("config", genErr)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: errModelNotConfigured})
			}
			metrics.Fail("generate", genErr)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: errGenerationFailed})
		}
		metrics.Set("subtasks.inserted", inserted)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, generateSubtasksResponse{Inserted: inserted})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.Fail("encode_response", nil)
		}
		return err
	}
}

func translate(svc TranslationGateway, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, TranslateRoute, translateEventName)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.Fail("auth", authErr)
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: errUnauthorized})
		}

		var req translateRequest
		if msg := decodeBody(c, &req); msg != "" {
			metrics.Fail("decode", nil)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
		}
		if strings.TrimSpace(req.TaskID) == "" || strings.TrimSpace(req.Language) == "" {
			metrics.Fail("validate", nil)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: errTranslateFieldsEmpty})
		}
		metrics.Set("translate.language", req.Language)

		serviceStart := time.Now()
		res, trErr := svc.GetOrCreate(ctx, userID, req.TaskID, req.Language)
		metrics.ObserveService(time.Since(serviceStart))
		if trErr != nil {
			status, code, stage := translateFailure(trErr)
			metrics.Fail(stage, trErr)
			return c.JSON(status, errorResponse{Error: code})
		}
		metrics.Set("translate.cached", res.Cached)
		if res.Resolution != "" {
			metrics.Set("translate.resolution", string(res.Resolution))
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, translateResponse{Cached: res.Cached, Translation: res.Translation})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.Fail("encode_response", nil)
		}
		return err
	}
}

func translateFailure(err error) (status int, code, stage string) {
	switch {
	case errors.Is(err, domain.ErrModelNotConfigured):
		return http.StatusInternalServerError, errModelNotConfigured, "config"
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound, errTaskNotFound, "task_lookup"
	case errors.Is(err, domain.ErrSubtasksUnavailable):
		return http.StatusInternalServerError, errSubtasksFetchFailed, "subtasks_lookup"
	default:
		return http.StatusInternalServerError, errTranslationFailed, "translate"
	}
}

// decodeBody reads a JSON request body into v. It returns the client error
// message when the body is empty, too large or not JSON.
func decodeBody(c echo.Context, v any) string {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, requestBodyMaxSize+1))
	if err != nil || len(body) > requestBodyMaxSize {
		return errInvalidBody
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	if err := sonic.ConfigStd.Unmarshal(body, v); err != nil {
		return errInvalidBody
	}
	return ""
}
