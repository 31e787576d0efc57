package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"tarot-oracle/internal/gateway"
)

const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeUpstream       = "upstream_error"
	errTypeServer         = "server_error"
)

type requestError struct {
	Status  int
	Message string
	Type    string
	Detail  any
}

func (e requestError) Error() string {
	return e.Message
}

func validationError(message string) requestError {
	return requestError{
		Status:  http.StatusBadRequest,
		Message: message,
		Type:    errTypeInvalidRequest,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

func writeError(c echo.Context, reqErr requestError) error {
	return c.JSON(reqErr.Status, errorBody{
		Error:   reqErr.Type,
		Status:  reqErr.Status,
		Message: reqErr.Message,
		Detail:  reqErr.Detail,
	})
}

func envelopeErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		errType := errTypeInvalidRequest
		if he.Code >= http.StatusInternalServerError {
			errType = errTypeServer
		}
		_ = writeError(c, requestError{
			Status:  he.Code,
			Message: fmt.Sprint(he.Message),
			Type:    errType,
		})
		return
	}

	_ = writeError(c, requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    errTypeServer,
	})
}

func toHTTPError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var exhausted *gateway.ExhaustedEndpointsError
	if errors.As(err, &exhausted) {
		return requestError{
			Status:  exhausted.Status(),
			Message: exhausted.Message(),
			Type:    errTypeUpstream,
			Detail:  exhausted.Detail(),
		}
	}
	if errors.Is(err, gateway.ErrNoEndpoints) {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: err.Error(),
			Type:    errTypeUpstream,
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    errTypeServer,
	}
}

// downstreamError logs a failed generation and converts it for the envelope.
func downstreamError(c echo.Context, route string, err error) error {
	reqErr := toHTTPError(err)
	slog.Error("downstream error",
		"route", route,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"status", reqErr.Status,
		"message", reqErr.Message,
		"detail", reqErr.Detail,
		"err", err,
	)
	return reqErr
}
