package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"ollama-gateway/internal/provider"
	"ollama-gateway/internal/translator"
)

// statusClientClosedRequest is the de-facto status for requests abandoned by the client.
const statusClientClosedRequest = 499

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

// StatusCode lets middlewares see the status before the error handler runs.
func (e requestError) StatusCode() int {
	return e.Status
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func openAIErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		errType := "invalid_request_error"
		if he.Code >= http.StatusInternalServerError {
			errType = "server_error"
		}
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), errType, "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, translator.ErrValidation) {
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}

	if errors.Is(err, context.Canceled) {
		return requestError{
			Status:  statusClientClosedRequest,
			Message: "client closed request",
			Type:    "invalid_request_error",
		}
	}

	if errors.Is(err, provider.ErrUpstreamUnavailable) {
		return requestError{
			Status:  http.StatusServiceUnavailable,
			Message: "inference server is unavailable",
			Type:    "upstream_unavailable",
		}
	}

	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return requestError{
			Status:  http.StatusNotFound,
			Message: statusErr.Message,
			Type:    "invalid_request_error",
			Code:    "model_not_found",
		}
	}

	if errors.Is(err, provider.ErrUpstreamStatus) {
		message := "upstream provider error"
		if statusErr != nil && statusErr.Message != "" {
			message = "upstream provider error: " + statusErr.Message
		}
		return requestError{
			Status:  http.StatusBadGateway,
			Message: message,
			Type:    "upstream_error",
		}
	}

	if errors.Is(err, provider.ErrMalformedReply) {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider returned a malformed reply",
			Type:    "upstream_malformed_reply",
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    "server_error",
	}
}

func (s *Server) decodeRequestBody(c echo.Context, target any) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.cfg.Limits.MaxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		return decodeError(err)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

func decodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body is required",
			Type:    "invalid_request_error",
		}
	case errors.As(err, &maxBytesErr):
		return requestError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
			Type:    "invalid_request_error",
		}
	case errors.Is(err, translator.ErrValidation):
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	case errors.As(err, &typeErr):
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: fmt.Sprintf("field %q must be of type %s", typeErr.Field, typeErr.Type),
			Type:    "invalid_request_error",
		}
	default:
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}
}
