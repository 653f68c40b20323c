package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ollama-gateway/internal/models"
	"ollama-gateway/internal/sse"
	"ollama-gateway/internal/translator"
)

// modelHeader reports the resolved model on streaming replies, whose records
// carry only content.
const modelHeader = "OpenAI-Model"

func (s *Server) handleChatCompletions(c echo.Context) error {
	var req translator.ChatCompletionRequest
	if err := s.decodeRequestBody(c, &req); err != nil {
		return err
	}

	if req.Stream {
		return s.streamCompletion(c, req.ToCompletionRequest())
	}

	if req.N > s.cfg.Limits.MaxChoices {
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: fmt.Sprintf("n must not exceed %d", s.cfg.Limits.MaxChoices),
			Type:    "invalid_request_error",
		}
	}

	ctx := c.Request().Context()
	results, err := s.router.Complete(ctx, req.ToCompletionRequest())
	if err != nil {
		return toHTTPError(err)
	}
	if len(results) == 0 {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider returned an empty response",
			Type:    "upstream_error",
		}
	}

	return c.JSON(http.StatusOK, translator.FromResults(results[0].Model, time.Now().Unix(), results))
}

func (s *Server) handleResponses(c echo.Context) error {
	var req translator.ResponseRequest
	if err := s.decodeRequestBody(c, &req); err != nil {
		return err
	}

	if req.Stream {
		return s.streamCompletion(c, req.ToCompletionRequest())
	}

	ctx := c.Request().Context()
	results, err := s.router.Complete(ctx, req.ToCompletionRequest())
	if err != nil {
		return toHTTPError(err)
	}
	if len(results) == 0 {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider returned an empty response",
			Type:    "upstream_error",
		}
	}

	return c.JSON(http.StatusOK, translator.FromResult(time.Now().Unix(), results[0]))
}

func (s *Server) handleModels(c echo.Context) error {
	descriptors, err := s.router.ListModels(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromDescriptors(descriptors))
}

// streamCompletion opens the upstream stream before committing any header so
// that failures to start are still reported with a proper status code.
func (s *Server) streamCompletion(c echo.Context, req models.CompletionRequest) error {
	if _, ok := c.Response().Writer.(http.Flusher); !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	ctx := c.Request().Context()
	model, chunks, err := s.router.Stream(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set(echo.HeaderCacheControl, "no-cache")
	header.Set(echo.HeaderConnection, "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set(modelHeader, model)
	c.Response().WriteHeader(http.StatusOK)

	err = sse.Relay(ctx, c.Response(), chunks, streamErrorType)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Info("client disconnected mid-stream", "model", model)
	default:
		slog.Error("stream ended with upstream failure", "model", model, "err", err)
	}
	return nil
}

func streamErrorType(err error) string {
	var reqErr requestError
	if errors.As(toHTTPError(err), &reqErr) {
		return reqErr.Type
	}
	return "upstream_error"
}
