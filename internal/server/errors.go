package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/async"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

var errUploadTooLarge = errors.New("upload too large")

type errorBody struct {
	Error string          `json:"error"`
	Stage constants.Stage `json:"stage,omitempty"`
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, async.ErrJobTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, common.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrRecognition), errors.Is(err, common.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrModelUnavailable),
		errors.Is(err, async.ErrQueueFull),
		errors.Is(err, async.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if errors.Is(err, errUploadTooLarge) {
		return "File too large"
	}
	if errors.Is(err, async.ErrJobTimeout) {
		return "Processing timed out"
	}
	if ae, ok := common.AsAppError(err); ok && ae.Message != "" {
		return ae.Message
	}
	switch statusFor(err) {
	case http.StatusServiceUnavailable:
		return "Service busy, retry later"
	case http.StatusGatewayTimeout:
		return "Processing timed out"
	default:
		return "Internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	stage := common.StageOf(err)
	if stage == "" && errors.Is(err, errUploadTooLarge) {
		stage = constants.StageInput
	}
	writeErrorWithStage(w, err, stage)
}

func writeErrorWithStage(w http.ResponseWriter, err error, stage constants.Stage) {
	writeJSON(w, statusFor(err), errorBody{Error: messageFor(err), Stage: stage})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
