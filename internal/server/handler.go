package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
	"github.com/kopfenjager/Vision-crm-agent/internal/pipeline"
)

const msgNoFile = "No file provided"

// Submitter runs one upload through the pipeline.
type Submitter interface {
	Submit(ctx context.Context, data []byte) (*pipeline.Run, error)
}

// Handler serves the license upload endpoint.
type Handler struct {
	pipeline  Submitter
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(p Submitter, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{pipeline: p, maxUpload: maxUploadBytes, logger: logger}
}

// Register mounts the upload endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/process-license", h.HandleProcessLicense)
}

// HandleProcessLicense handles POST /process-license with a multipart "file" field.
func (h *Handler) HandleProcessLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := common.RequestIDFromContext(ctx)
	start := time.Now()

	data, err := h.readUpload(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "upload rejected", "req_id", requestID, "error", err)
		writeError(w, err)
		return
	}

	run, err := h.pipeline.Submit(ctx, data)
	if err != nil {
		h.logger.ErrorContext(ctx, "license processing failed",
			"req_id", requestID,
			"stage", stageFor(err, run),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		writeErrorWithStage(w, err, stageFor(err, run))
		return
	}
	if run == nil || run.Envelope == nil {
		writeError(w, common.InternalError(constants.StageAssemble, errors.New("run finished without envelope")))
		return
	}

	h.logger.InfoContext(ctx, "license processed",
		"req_id", requestID,
		"customer_id", run.CustomerID,
		"face_found", run.FaceFound,
		"partial", run.Partial,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, run.Envelope)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errUploadTooLarge
		}
		return nil, common.InputError(msgNoFile)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(constants.UploadField)
	if err != nil || header == nil || header.Filename == "" {
		return nil, common.InputError(msgNoFile)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, common.InputError("upload could not be read")
	}
	return data, nil
}

func stageFor(err error, run *pipeline.Run) constants.Stage {
	if s := common.StageOf(err); s != "" {
		return s
	}
	if run != nil && run.Stage != "" {
		return run.Stage
	}
	return ""
}
