package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/models"
)

// maxLineSize bounds a single request line, matching the HTTP body limit.
const maxLineSize = defaultMaxRequestSizeMB * 1024 * 1024

// StdioHandler handles line-delimited JSON-RPC communication over standard input/output.
// Requests are processed one at a time, in order.
type StdioHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewStdioHandler creates a new StdioHandler.
func NewStdioHandler(d *Dispatcher, logger *slog.Logger) *StdioHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioHandler{
		dispatcher: d,
		logger:     logger,
	}
}

func (h *StdioHandler) writeJSONRPCResponse(writer io.Writer, response models.JSONRPCResponse) {
	responseBytes, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("marshaling JSON-RPC response", "error", err, "id", response.ID)
		errorResp := models.JSONRPCResponse{
			JSONRPC: models.JSONRPCVersion,
			ID:      response.ID,
			Error:   errors.ToJSONRPCError(errors.NewInternalError("Server error: failed to marshal response.")),
		}
		responseBytes, _ = json.Marshal(errorResp)
	}

	if _, err := fmt.Fprintln(writer, string(responseBytes)); err != nil {
		h.logger.Error("writing JSON-RPC response", "error", err)
	}
}

// Start processes requests from input until EOF, a read error or ctx is done.
// In-flight operations observe ctx.
func (h *StdioHandler) Start(ctx context.Context, input io.Reader, output io.Writer) error {
	h.logger.Info("starting stdio JSON-RPC handler")
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		lineBytes := scanner.Bytes()
		if len(bytes.TrimSpace(lineBytes)) == 0 {
			continue
		}

		var jsonReq models.JSONRPCRequest
		if err := json.Unmarshal(lineBytes, &jsonReq); err != nil {
			h.writeJSONRPCResponse(output, models.JSONRPCResponse{
				JSONRPC: models.JSONRPCVersion,
				ID:      nil,
				Error:   errors.ToJSONRPCError(errors.NewParseError(fmt.Sprintf("Invalid JSON received: %v", err))),
			})
			continue
		}

		resp, reply := h.dispatcher.Dispatch(ctx, jsonReq)
		if reply {
			h.writeJSONRPCResponse(output, resp)
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("reading from stdio", "error", err)
		return err
	}
	h.logger.Info("stdio JSON-RPC handler finished")
	return ctx.Err()
}
