package mcpsrv

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cuedeck/cue/internal/errs"
)

// createJSONResponse marshals data as the tool's text content.
func createJSONResponse(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

// coded is implemented by every errs.* type.
type coded interface {
	Code() int
}

// createErrorResponse maps err to its JSON-RPC code and reports it inside
// the result with IsError set: tool errors travel in-band so the caller
// can self-correct.
func createErrorResponse(method string, err error) (*mcp.CallToolResult, error) {
	code := errs.CodeInternal
	if c, ok := err.(coded); ok {
		code = c.Code()
	}

	errorData := map[string]any{
		"success": false,
		"error":   err.Error(),
		"method":  method,
		"code":    code,
	}
	if rl, ok := err.(*errs.RateLimitError); ok {
		errorData["retry_after_seconds"] = rl.RetryAfterSeconds
		errorData["limit"] = rl.Limit
		errorData["window_seconds"] = rl.WindowSeconds
		errorData["current_count"] = rl.CurrentCount
	}

	resp, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	resp.IsError = true
	return resp, nil
}

func strSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func intSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func boolSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func strArraySchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: desc}
}
