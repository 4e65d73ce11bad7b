package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"file-patch-server/internal/errors"
	"file-patch-server/internal/models"
	"file-patch-server/internal/service"
)

// Server identity reported by "initialize".
const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "file-patch-server"
	ServerVersion   = "1.0.0"
)

// MCPProcessor handles MCP (Model Context Protocol) requests.
type MCPProcessor struct {
	service service.PatchService
}

// NewMCPProcessor creates a new MCPProcessor.
func NewMCPProcessor(svc service.PatchService) *MCPProcessor {
	return &MCPProcessor{
		service: svc,
	}
}

// Handles reports whether method is one of the MCP methods served by ProcessRequest.
func Handles(method string) bool {
	switch method {
	case "initialize", "tools/list", "tools/call":
		return true
	}
	return false
}

// ProcessRequest handles an MCP request. The result is an InitializeResponse,
// a ToolsListResponse or an MCPToolResult depending on the method.
func (p *MCPProcessor) ProcessRequest(ctx context.Context, req models.JSONRPCRequest) (interface{}, *models.JSONRPCError) {
	switch req.Method {
	case "initialize":
		return &models.InitializeResponse{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    models.Capabilities{Tools: models.ToolsCapabilities{}},
			ServerInfo: models.ServerInfo{
				Name:        ServerName,
				Version:     ServerVersion,
				Description: "Applies line-range edits to workspace files with diff preview and confirmation.",
			},
		}, nil
	case "tools/list":
		return &models.ToolsListResponse{Tools: toolDefinitions()}, nil
	case "tools/call":
		var params models.ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.ToJSONRPCError(errors.NewInvalidParamsError("Invalid parameters for tools/call: "+err.Error(), nil))
		}
		return p.handleToolCall(ctx, params.Name, params.Arguments)
	default:
		return nil, errors.ToJSONRPCError(errors.NewMethodNotFoundError(req.Method))
	}
}

// handleToolCall dispatches a tool call based on name and arguments.
func (p *MCPProcessor) handleToolCall(ctx context.Context, toolName string, toolArgs json.RawMessage) (*models.MCPToolResult, *models.JSONRPCError) {
	switch toolName {
	case "read_file":
		var readParams models.ReadFileRequest
		if err := json.Unmarshal(toolArgs, &readParams); err != nil {
			return nil, errors.ToJSONRPCError(errors.NewInvalidParamsError("Invalid parameters for read_file: "+err.Error(), nil))
		}
		resp, serviceErr := p.service.ReadFile(ctx, readParams)
		if serviceErr != nil {
			return toolError(serviceErr), nil
		}
		return toolText(formatReadFileResult(readParams.FilePath, resp)), nil
	case "preview_patch":
		var editParams models.EditRequest
		if err := json.Unmarshal(toolArgs, &editParams); err != nil {
			return nil, errors.ToJSONRPCError(errors.NewInvalidParamsError("Invalid parameters for preview_patch: "+err.Error(), nil))
		}
		resp, serviceErr := p.service.PreviewPatch(ctx, editParams)
		if serviceErr != nil {
			return toolError(serviceErr), nil
		}
		return toolText(formatPreviewResult(editParams.FilePath, resp)), nil
	case "patch_file":
		var editParams models.EditRequest
		if err := json.Unmarshal(toolArgs, &editParams); err != nil {
			return nil, errors.ToJSONRPCError(errors.NewInvalidParamsError("Invalid parameters for patch_file: "+err.Error(), nil))
		}
		resp, serviceErr := p.service.PatchFile(ctx, editParams)
		if serviceErr != nil {
			return toolError(serviceErr), nil
		}
		return toolText(formatPatchResult(resp)), nil
	default:
		return &models.MCPToolResult{
			Content: []models.MCPToolContent{{Type: "text", Text: "Error: Unknown tool '" + toolName + "'."}},
			IsError: true,
		}, nil
	}
}

func toolText(text string) *models.MCPToolResult {
	return &models.MCPToolResult{
		Content: []models.MCPToolContent{{Type: "text", Text: text}},
		IsError: false,
	}
}

func toolError(errDetail *models.ErrorDetail) *models.MCPToolResult {
	return &models.MCPToolResult{
		Content: []models.MCPToolContent{{Type: "text", Text: formatToolError(errDetail)}},
		IsError: true,
	}
}

func formatReadFileResult(filePath string, resp *models.ReadFileResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", filePath)
	fmt.Fprintf(&b, "Total lines: %d (line endings: %s)\n", resp.TotalLines, resp.LineEnding)
	if resp.RangeRequested != nil {
		fmt.Fprintf(&b, "Showing lines %d-%d\n", resp.RangeRequested.StartLine, resp.RangeRequested.EndLine)
	}
	b.WriteString("\n")
	b.WriteString(resp.Content)
	return b.String()
}

func formatPreviewResult(filePath string, resp *models.PreviewPatchResponse) string {
	var b strings.Builder
	d := resp.Display
	fmt.Fprintf(&b, "Preview of %d edit(s) to %s (nothing written).\n", resp.EditCount, filePath)
	writeStat(&b, d.DiffStat)
	if d.UnifiedDiff == "" {
		b.WriteString("\nNo changes.")
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(d.UnifiedDiff)
	return b.String()
}

func formatPatchResult(resp *models.PatchFileResponse) string {
	var b strings.Builder
	b.WriteString(resp.Message)
	b.WriteString("\n")
	if !resp.Success {
		return b.String()
	}
	writeStat(&b, resp.Display.DiffStat)
	if resp.ModifiedByUser && resp.Display.UserDiffStat != nil {
		u := resp.Display.UserDiffStat
		fmt.Fprintf(&b, "User changes to the proposal: +%d/-%d lines\n", u.AddedLines, u.RemovedLines)
	}
	if resp.Display.Snippet != "" {
		fmt.Fprintf(&b, "\nHere's the result of running `cat -n` on a snippet of %s:\n", resp.Display.FileName)
		b.WriteString(resp.Display.Snippet)
	}
	return b.String()
}

func writeStat(b *strings.Builder, s models.DiffStat) {
	fmt.Fprintf(b, "Lines: +%d/-%d, characters: +%d/-%d\n", s.AddedLines, s.RemovedLines, s.AddedChars, s.RemovedChars)
}

// formatToolError formats a service error for inclusion in a tool result.
func formatToolError(errDetail *models.ErrorDetail) string {
	if errDetail == nil {
		return "Error: unknown error"
	}
	msg := fmt.Sprintf("Error: %s (Code: %d)", errDetail.Message, errDetail.Code)
	if details, ok := errDetail.Data["details"].(string); ok && details != "" && details != errDetail.Message {
		msg += "\nDetails: " + details
	}
	return msg
}

func toolDefinitions() []models.ToolDefinition {
	editSchema := models.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to patch, relative to the workspace root or absolute.",
			},
			"edits": map[string]interface{}{
				"type":        "array",
				"description": "Line-range replacements. All line numbers refer to the file before any edit; order does not matter.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"start_line": map[string]interface{}{"type": "integer", "minimum": 0, "description": "First replaced line (1-based)."},
						"end_line":   map[string]interface{}{"type": "integer", "minimum": 0, "description": "Last replaced line (inclusive). Use start_line-1 to insert without replacing."},
						"content":    map[string]interface{}{"type": "string", "description": "Replacement text; empty deletes the range."},
					},
					"required": []string{"start_line", "end_line", "content"},
				},
			},
			"instruction": map[string]interface{}{
				"type":        "string",
				"description": "Short description of the intent of the change.",
			},
		},
		"required": []string{"file_path", "edits"},
	}

	return []models.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Reads a file from the workspace, optionally a line range. Line numbers match those used by patch_file.",
			InputSchema: models.Schema{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path":  map[string]interface{}{"type": "string", "description": "Path of the file to read."},
					"start_line": map[string]interface{}{"type": "integer", "minimum": 1, "description": "First line to return (1-based)."},
					"end_line":   map[string]interface{}{"type": "integer", "minimum": 1, "description": "Last line to return (inclusive)."},
				},
				"required": []string{"file_path"},
			},
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "preview_patch",
			Description: "Computes the unified diff and line statistics of a set of edits without writing anything.",
			InputSchema: editSchema,
			Annotations: models.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "patch_file",
			Description: "Applies a set of line-range edits to an existing file in a single step after confirmation. Line endings of the file are preserved.",
			InputSchema: editSchema,
			Annotations: models.ToolAnnotations{DestructiveHint: true},
		},
	}
}
