package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"

	"file-patch-server/internal/models"
)

// JSON-RPC Error Codes (as per JSON-RPC 2.0 Specification)
const (
	CodeParseError     = -32700 // Invalid JSON was received by the server.
	CodeInvalidRequest = -32600 // The JSON sent is not a valid Request object.
	CodeMethodNotFound = -32601 // The method does not exist / is not available.
	CodeInvalidParams  = -32602 // Invalid method parameter(s).
	CodeInternalError  = -32603 // Internal JSON-RPC error.
)

// Application Specific Error Codes
const (
	// CodeFileSystemError covers store failures: not found, read and write errors.
	// The "type" entry of the error data tells them apart.
	CodeFileSystemError = -32001

	// CodeOperationLockFailed indicates the server is saturated and the operation could not start.
	CodeOperationLockFailed = -32002

	// CodeFileTooLarge indicates the file exceeds the configured size limit.
	CodeFileTooLarge = -32003

	// CodeEditPreparationFailed indicates the edit list could not be applied.
	CodeEditPreparationFailed = -32004

	// CodePathNotInWorkspace indicates the access-control check denied the path.
	CodePathNotInWorkspace = -32005

	// CodeOperationCancelled indicates the operation was cancelled or timed out.
	CodeOperationCancelled = -32006
)

// Kind discriminates engine failures.
type Kind string

const (
	KindFileNotFound           Kind = "file_not_found"
	KindReadContentFailure     Kind = "read_content_failure"
	KindEditPreparationFailure Kind = "edit_preparation_failure"
	KindPathNotInWorkspace     Kind = "path_not_in_workspace"
	KindFileWriteFailure       Kind = "file_write_failure"
)

// PatchError is a terminal failure of one patch invocation.
// Message is meant for humans; Detail is the full machine-readable explanation.
type PatchError struct {
	Kind    Kind
	Path    string
	Message string
	Detail  string
	Err     error
}

func (e *PatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PatchError) Unwrap() error { return e.Err }

// KindOf reports the Kind of the first PatchError in err's chain.
func KindOf(err error) (Kind, bool) {
	var pe *PatchError
	if stdErrors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a PatchError of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// FileNotFound is returned when the target of a patch does not exist.
func FileNotFound(path string, cause error) *PatchError {
	return &PatchError{
		Kind:    KindFileNotFound,
		Path:    path,
		Message: fmt.Sprintf("File '%s' not found", path),
		Detail:  fmt.Sprintf("file %s does not exist; patches apply only to existing files, create it with a write operation first", path),
		Err:     cause,
	}
}

// ReadContentFailure is returned for any store read error other than absence.
func ReadContentFailure(path string, cause error) *PatchError {
	return &PatchError{
		Kind:    KindReadContentFailure,
		Path:    path,
		Message: fmt.Sprintf("Could not read file '%s'", path),
		Detail:  fmt.Sprintf("error reading %s: %v", path, cause),
		Err:     cause,
	}
}

// EditPreparationFailure is returned when the edit list cannot be applied.
func EditPreparationFailure(path string, cause error) *PatchError {
	return &PatchError{
		Kind:    KindEditPreparationFailure,
		Path:    path,
		Message: fmt.Sprintf("Could not apply edits to '%s'", path),
		Detail:  fmt.Sprintf("error preparing edits for %s: %v; re-read the file to obtain current line numbers before retrying", path, cause),
		Err:     cause,
	}
}

// PathNotInWorkspace is returned when the access-control check denies the path.
func PathNotInWorkspace(path, denial string) *PatchError {
	return &PatchError{
		Kind:    KindPathNotInWorkspace,
		Path:    path,
		Message: denial,
		Detail:  fmt.Sprintf("access to %s denied: %s", path, denial),
	}
}

// FileWriteFailure is returned when committing the patched content fails.
func FileWriteFailure(path string, cause error) *PatchError {
	return &PatchError{
		Kind:    KindFileWriteFailure,
		Path:    path,
		Message: fmt.Sprintf("Could not write file '%s'", path),
		Detail:  fmt.Sprintf("error writing %s: %v", path, cause),
		Err:     cause,
	}
}

// --- Helper functions to create models.ErrorDetail ---

// NewErrorDetail creates a new ErrorDetail.
func NewErrorDetail(code int, message string, data map[string]interface{}) *models.ErrorDetail {
	return &models.ErrorDetail{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewParseError creates an ErrorDetail for JSON parsing errors.
func NewParseError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeParseError, "Parse error", map[string]interface{}{"details": details})
}

// NewInvalidRequestError creates an ErrorDetail for invalid JSON-RPC Request objects.
func NewInvalidRequestError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeInvalidRequest, "Invalid Request", map[string]interface{}{"details": details})
}

// NewMethodNotFoundError creates an ErrorDetail when a JSON-RPC method is not found.
func NewMethodNotFoundError(methodName string) *models.ErrorDetail {
	return NewErrorDetail(CodeMethodNotFound, "Method not found", map[string]interface{}{"method": methodName})
}

// NewInvalidParamsError creates an ErrorDetail for invalid method parameters.
// paramIssues lists the offending fields and may be nil.
func NewInvalidParamsError(summaryMessage string, paramIssues map[string]interface{}) *models.ErrorDetail {
	message := "Invalid params"
	if summaryMessage != "" {
		message = summaryMessage
	}
	data := map[string]interface{}{"details": message, "type": "invalid_params"}
	if paramIssues != nil {
		data["param_issues"] = paramIssues
		if fn, ok := paramIssues["filename"].(string); ok {
			data["filename"] = fn
		}
	}
	return NewErrorDetail(CodeInvalidParams, message, data)
}

// NewInternalError creates an ErrorDetail for unexpected server errors.
func NewInternalError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeInternalError, "Internal error", map[string]interface{}{"details": details})
}

// NewFileTooLargeError creates an ErrorDetail for files or payloads exceeding size limits.
func NewFileTooLargeError(filename string, maxSizeMB int) *models.ErrorDetail {
	return NewErrorDetail(CodeFileTooLarge,
		fmt.Sprintf("File '%s' exceeds maximum allowed size of %d MB", filename, maxSizeMB),
		map[string]interface{}{
			"filename":    filename,
			"max_size_mb": maxSizeMB,
			"type":        "file_too_large",
		})
}

// NewOperationLockFailedError creates an ErrorDetail when no operation slot could be acquired.
func NewOperationLockFailedError(filename, operation string, details string) *models.ErrorDetail {
	return NewErrorDetail(CodeOperationLockFailed,
		fmt.Sprintf("Could not start operation '%s' on file '%s'", operation, filename),
		map[string]interface{}{
			"filename":  filename,
			"operation": operation,
			"type":      "operation_lock_failed",
			"details":   details,
		})
}

// NewOperationCancelledError creates an ErrorDetail for cancelled or timed-out operations.
func NewOperationCancelledError(filename, operation string, cause error) *models.ErrorDetail {
	reason := "cancelled"
	if stdErrors.Is(cause, context.DeadlineExceeded) {
		reason = "timed out"
	}
	return NewErrorDetail(CodeOperationCancelled,
		fmt.Sprintf("Operation '%s' on file '%s' %s; no changes were written", operation, filename, reason),
		map[string]interface{}{
			"filename":  filename,
			"operation": operation,
			"type":      "operation_cancelled",
			"details":   cause.Error(),
		})
}

// ToErrorDetail converts an engine error into the service-boundary representation.
// Errors that are not PatchErrors become cancellation or internal errors.
func ToErrorDetail(err error, operation string) *models.ErrorDetail {
	if err == nil {
		return nil
	}
	var pe *PatchError
	if !stdErrors.As(err, &pe) {
		if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
			return NewOperationCancelledError("", operation, err)
		}
		return NewInternalError(err.Error())
	}
	code := CodeFileSystemError
	switch pe.Kind {
	case KindEditPreparationFailure:
		code = CodeEditPreparationFailed
	case KindPathNotInWorkspace:
		code = CodePathNotInWorkspace
	}
	return NewErrorDetail(code, pe.Message, map[string]interface{}{
		"filename":  pe.Path,
		"operation": operation,
		"type":      string(pe.Kind),
		"details":   pe.Detail,
	})
}

// --- Conversion to HTTP and JSON-RPC Error Structures ---

// ToErrorResponse converts an ErrorDetail to an HTTP models.ErrorResponse.
func ToErrorResponse(errDetail *models.ErrorDetail) *models.ErrorResponse {
	if errDetail == nil {
		return nil
	}
	return &models.ErrorResponse{Error: *errDetail}
}

// ToJSONRPCError converts an ErrorDetail to a models.JSONRPCError.
func ToJSONRPCError(errDetail *models.ErrorDetail) *models.JSONRPCError {
	if errDetail == nil {
		return nil
	}
	rpcErr := &models.JSONRPCError{
		Code:    errDetail.Code,
		Message: errDetail.Message,
	}
	if errDetail.Data == nil {
		return rpcErr
	}
	data := &models.JSONRPCErrorData{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if v, ok := errDetail.Data["filename"].(string); ok {
		data.Filename = v
	}
	if v, ok := errDetail.Data["operation"].(string); ok {
		data.Operation = v
	}
	if v, ok := errDetail.Data["type"].(string); ok {
		data.Type = v
	}
	if pi, ok := errDetail.Data["param_issues"]; ok {
		data.Details = fmt.Sprintf("Parameter issues: %v. Summary: %v", pi, errDetail.Data["details"])
	} else if v, ok := errDetail.Data["details"].(string); ok {
		data.Details = v
	}
	rpcErr.Data = data
	return rpcErr
}

// --- HTTP Status Mapping ---

// MapErrorToHTTPStatus maps an ErrorDetail to an HTTP status code.
func MapErrorToHTTPStatus(errDetail *models.ErrorDetail) int {
	if errDetail == nil {
		return http.StatusInternalServerError
	}
	switch errDetail.Code {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	case CodeFileSystemError:
		if errDetail.Type() == string(KindFileNotFound) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case CodeEditPreparationFailed:
		return http.StatusUnprocessableEntity
	case CodePathNotInWorkspace:
		return http.StatusForbidden
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeOperationLockFailed:
		return http.StatusConflict
	case CodeOperationCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
