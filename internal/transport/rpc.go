package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/mcp"
	"file-patch-server/internal/models"
	"file-patch-server/internal/service"
)

// MCPProcessor answers the MCP methods (initialize, tools/list, tools/call).
type MCPProcessor interface {
	ProcessRequest(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.JSONRPCError)
}

// Dispatcher routes JSON-RPC 2.0 requests to the patch service. The service
// methods are callable directly by name; MCP methods go to the processor.
type Dispatcher struct {
	service   service.PatchService
	processor MCPProcessor
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. processor may be nil, in which case the MCP
// methods are answered with "method not found".
func NewDispatcher(svc service.PatchService, processor MCPProcessor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{service: svc, processor: processor, logger: logger}
}

// Dispatch handles one decoded request. The boolean is false for notifications
// (requests without an id), which get no response.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.JSONRPCRequest) (models.JSONRPCResponse, bool) {
	resp := models.JSONRPCResponse{JSONRPC: models.JSONRPCVersion, ID: req.ID}

	if req.JSONRPC != models.JSONRPCVersion {
		resp.Error = errors.ToJSONRPCError(errors.NewInvalidRequestError("Invalid JSON-RPC version. Must be '2.0'."))
		return resp, true
	}
	if req.Method == "" {
		resp.Error = errors.ToJSONRPCError(errors.NewInvalidRequestError("Method not specified."))
		return resp, true
	}
	if req.ID == nil {
		if strings.HasPrefix(req.Method, "notifications/") {
			d.logger.Debug("notification received", "method", req.Method)
			return resp, false
		}
		// A request without an id is a notification: it runs but is never answered.
		resp = d.handle(ctx, req, resp)
		if resp.Error != nil {
			d.logger.Warn("notification failed", "method", req.Method, "code", resp.Error.Code, "error", resp.Error.Message)
		}
		return resp, false
	}

	d.logger.Debug("dispatching request", "method", req.Method, "id", req.ID)
	return d.handle(ctx, req, resp), true
}

func (d *Dispatcher) handle(ctx context.Context, req models.JSONRPCRequest, resp models.JSONRPCResponse) models.JSONRPCResponse {
	if mcp.Handles(req.Method) {
		if d.processor == nil {
			resp.Error = errors.ToJSONRPCError(errors.NewMethodNotFoundError(req.Method))
			return resp
		}
		result, rpcErr := d.processor.ProcessRequest(ctx, req)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		return resp
	}

	var serviceRespData interface{}
	var serviceErr *models.ErrorDetail

	switch req.Method {
	case "read_file":
		var params models.ReadFileRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			serviceErr = errors.NewInvalidParamsError(fmt.Sprintf("Invalid params for read_file: %v", err), nil)
		} else {
			serviceRespData, serviceErr = nilIfError(d.service.ReadFile(ctx, params))
		}
	case "preview_patch":
		var params models.EditRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			serviceErr = errors.NewInvalidParamsError(fmt.Sprintf("Invalid params for preview_patch: %v", err), nil)
		} else {
			serviceRespData, serviceErr = nilIfError(d.service.PreviewPatch(ctx, params))
		}
	case "patch_file":
		var params models.EditRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			serviceErr = errors.NewInvalidParamsError(fmt.Sprintf("Invalid params for patch_file: %v", err), nil)
		} else {
			serviceRespData, serviceErr = nilIfError(d.service.PatchFile(ctx, params))
		}
	default:
		serviceErr = errors.NewMethodNotFoundError(req.Method)
	}

	if serviceErr != nil {
		rpcError := errors.ToJSONRPCError(serviceErr)
		if rpcError.Data != nil && rpcError.Data.Operation == "" {
			rpcError.Data.Operation = req.Method
		}
		resp.Error = rpcError
		return resp
	}
	resp.Result = serviceRespData
	return resp
}

// nilIfError drops typed nil results so that an error response carries no result.
func nilIfError[T any](v *T, errDetail *models.ErrorDetail) (interface{}, *models.ErrorDetail) {
	if errDetail != nil || v == nil {
		return nil, errDetail
	}
	return v, nil
}
