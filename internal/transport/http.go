package transport

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/models"
	"file-patch-server/internal/service"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 60 * time.Second
	// defaultMaxRequestSizeMB caps request bodies.
	defaultMaxRequestSizeMB = 50
)

// HTTPOption configures an HTTPHandler.
type HTTPOption func(*HTTPHandler)

// WithHTTPLogger sets the handler logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxRequestSize overrides the request body limit in bytes.
func WithMaxRequestSize(n int64) HTTPOption {
	return func(h *HTTPHandler) {
		if n > 0 {
			h.maxReqSize = n
		}
	}
}

// WithTimeouts sets the server read and write timeouts. Zero keeps the default.
func WithTimeouts(read, write time.Duration) HTTPOption {
	return func(h *HTTPHandler) {
		if read > 0 {
			h.readTimeout = read
		}
		if write > 0 {
			h.writeTimeout = write
		}
	}
}

// WithDispatcher serves JSON-RPC (including MCP) on POST /rpc.
func WithDispatcher(d *Dispatcher) HTTPOption {
	return func(h *HTTPHandler) { h.dispatcher = d }
}

// HTTPHandler serves the patch service over HTTP.
type HTTPHandler struct {
	service      service.PatchService
	dispatcher   *Dispatcher
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxReqSize   int64
	logger       *slog.Logger
	// Server is the underlying server, available for graceful shutdown.
	Server *http.Server
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(svc service.PatchService, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		service:      svc,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		maxReqSize:   int64(defaultMaxRequestSizeMB) * 1024 * 1024,
		logger:       slog.Default(),
		Server:       &http.Server{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up the HTTP routes for the handler.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/read_file", h.handleReadFile)
	mux.HandleFunc("/preview_patch", h.handlePreviewPatch)
	mux.HandleFunc("/patch_file", h.handlePatchFile)
	mux.HandleFunc("/health", h.handleHealthCheck)
	if h.dispatcher != nil {
		mux.HandleFunc("/rpc", h.handleRPC)
	}
}

func (h *HTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("encoding JSON response", "error", err)
		}
	}
}

func (h *HTTPHandler) writeJSONErrorResponse(w http.ResponseWriter, httpStatusCode int, errorDetail *models.ErrorDetail) {
	if errorDetail == nil {
		errorDetail = errors.NewInternalError("An unexpected error occurred and error details were lost.")
		httpStatusCode = http.StatusInternalServerError
	}
	h.writeJSONResponse(w, httpStatusCode, errors.ToErrorResponse(errorDetail))
}

func (h *HTTPHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSONBody enforces method, content type and size limits, then decodes the body
// strictly into v. It writes the error response itself and reports whether to continue.
func (h *HTTPHandler) decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		errDetail := errors.NewInvalidRequestError(fmt.Sprintf("Method %s not allowed for %s. Use POST.", r.Method, r.URL.Path))
		h.writeJSONErrorResponse(w, http.StatusMethodNotAllowed, errDetail)
		return false
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		errDetail := errors.NewInvalidRequestError("Invalid Content-Type header. Must be 'application/json' or 'application/json; charset=utf-8'.")
		h.writeJSONErrorResponse(w, http.StatusUnsupportedMediaType, errDetail)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxReqSize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var maxBytesError *http.MaxBytesError
		var jsonSyntaxError *json.SyntaxError
		var jsonUnmarshalTypeError *json.UnmarshalTypeError
		switch {
		case stdErrors.As(err, &maxBytesError):
			errDetail := errors.NewInvalidRequestError(fmt.Sprintf("Request body exceeds maximum size of %d bytes.", maxBytesError.Limit))
			h.writeJSONErrorResponse(w, http.StatusRequestEntityTooLarge, errDetail)
		case stdErrors.As(err, &jsonSyntaxError):
			msg := fmt.Sprintf("Invalid JSON syntax at offset %d: %s", jsonSyntaxError.Offset, jsonSyntaxError.Error())
			h.writeJSONErrorResponse(w, http.StatusBadRequest, errors.NewParseError(msg))
		case stdErrors.As(err, &jsonUnmarshalTypeError):
			msg := fmt.Sprintf("Invalid JSON type for field '%s'. Expected '%s' but got '%s' at offset %d.",
				jsonUnmarshalTypeError.Field, jsonUnmarshalTypeError.Type, jsonUnmarshalTypeError.Value, jsonUnmarshalTypeError.Offset)
			h.writeJSONErrorResponse(w, http.StatusBadRequest, errors.NewParseError(msg))
		default:
			h.writeJSONErrorResponse(w, http.StatusBadRequest, errors.NewParseError(fmt.Sprintf("Failed to decode request body: %v", err)))
		}
		return false
	}
	return true
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, r *http.Request, errDetail *models.ErrorDetail) {
	status := errors.MapErrorToHTTPStatus(errDetail)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "code", errDetail.Code, "message", errDetail.Message)
	} else {
		h.logger.Debug("request failed", "path", r.URL.Path, "code", errDetail.Code, "message", errDetail.Message)
	}
	h.writeJSONErrorResponse(w, status, errDetail)
}

func (h *HTTPHandler) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req models.ReadFileRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	serviceResp, serviceErr := h.service.ReadFile(r.Context(), req)
	if serviceErr != nil {
		h.writeServiceError(w, r, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, serviceResp)
}

func (h *HTTPHandler) handlePreviewPatch(w http.ResponseWriter, r *http.Request) {
	var req models.EditRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	serviceResp, serviceErr := h.service.PreviewPatch(r.Context(), req)
	if serviceErr != nil {
		h.writeServiceError(w, r, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, serviceResp)
}

func (h *HTTPHandler) handlePatchFile(w http.ResponseWriter, r *http.Request) {
	var req models.EditRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	serviceResp, serviceErr := h.service.PatchFile(r.Context(), req)
	if serviceErr != nil {
		h.writeServiceError(w, r, serviceErr)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, serviceResp)
}

// handleRPC answers one JSON-RPC request. JSON-RPC errors travel in the body with status 200.
func (h *HTTPHandler) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req models.JSONRPCRequest
	if !h.decodeJSONBody(w, r, &req) {
		return
	}
	resp, reply := h.dispatcher.Dispatch(r.Context(), req)
	if !reply {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// StartServer configures Server and serves on port until Shutdown is called.
// A graceful shutdown returns nil.
func (h *HTTPHandler) StartServer(port int) error {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	h.Server.Addr = fmt.Sprintf(":%d", port)
	h.Server.Handler = mux
	h.Server.ReadTimeout = h.readTimeout
	h.Server.WriteTimeout = h.writeTimeout

	h.logger.Info("HTTP server starting", "port", port, "read_timeout", h.readTimeout, "write_timeout", h.writeTimeout)
	err := h.Server.ListenAndServe()
	if err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		h.logger.Error("HTTP server stopped", "error", err)
		return err
	}
	h.logger.Info("HTTP server shut down", "port", port)
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until ctx is done.
func (h *HTTPHandler) Shutdown(ctx context.Context) error {
	return h.Server.Shutdown(ctx)
}
