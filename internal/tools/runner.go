// Package tools exposes the execution engine to MCP hosts.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/session"
)

// ToolName is the name of the code execution tool.
const ToolName = "code_run"

// CodeRunner serves code_run calls from an Engine.
type CodeRunner struct {
	engine *execution.Engine
}

// NewCodeRunner returns a runner backed by engine.
func NewCodeRunner(engine *execution.Engine) *CodeRunner {
	return &CodeRunner{engine: engine}
}

// Server returns an MCP server exposing the runner's tool.
func (r *CodeRunner) Server(version string) *server.MCPServer {
	s := server.NewMCPServer("pairpad-code-runner", version)
	s.AddTool(r.Tool(), r.Handle)
	return s
}

// Tool describes code_run.
func (r *CodeRunner) Tool() mcp.Tool {
	var langs []string
	for _, l := range r.engine.Languages() {
		langs = append(langs, string(l))
	}
	list := strings.Join(langs, ", ")

	return mcp.Tool{
		Name:        ToolName,
		Description: fmt.Sprintf("Execute a code snippet in a sandbox and return its output. Supported languages: %s.", list),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language (" + list + ")",
					"enum":        langs,
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
			},
			Required: []string{"language", "code"},
		},
	}
}

// Handle runs one code_run call. Program failures come back as an error
// result carrying the program's output.
func (r *CodeRunner) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	language, _ := args["language"].(string)
	code, _ := args["code"].(string)
	if language == "" || code == "" {
		return errResult("error: 'language' and 'code' are required"), nil
	}

	lang, err := session.ParseLanguage(language)
	if err != nil {
		return errResult("error: " + err.Error()), nil
	}

	res, err := r.engine.Execute(ctx, lang, code)
	if err != nil {
		if errors.Is(err, execution.ErrUnsupportedLanguage) || errors.Is(err, execution.ErrEngineClosed) {
			return errResult("error: " + err.Error()), nil
		}
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: res.Output}},
		IsError: res.Failed,
	}, nil
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
