package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ggonzalez94/insights-mcp/internal/dispatch"
	"github.com/ggonzalez94/insights-mcp/internal/snippet"
)

// Tool names exposed to MCP clients.
const (
	ToolListResources       = "list_resources"
	ToolListResourceActions = "list_resource_actions"
	ToolGetActionSchema     = "get_resource_action_schema"
	ToolInvokeAction        = "invoke_resource_action"
	ToolGetActionSnippet    = "get_resource_action_snippet"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolListResources,
		mcp.WithDescription("List the available resources. Call this first, then list_resource_actions for a resource."),
		mcp.WithString("topic", mcp.Description("Optional topic namespace to filter by.")),
	), s.handleListResources)

	s.mcp.AddTool(mcp.NewTool(ToolListResourceActions,
		mcp.WithDescription("List the actions of one resource with their descriptions."),
		mcp.WithString("resource", mcp.Required(), mcp.Description("Resource name from list_resources.")),
	), s.handleListResourceActions)

	s.mcp.AddTool(mcp.NewTool(ToolGetActionSchema,
		mcp.WithDescription("Return the JSON input schema of one action. Build the invoke payload from it."),
		mcp.WithString("resource", mcp.Required()),
		mcp.WithString("action", mcp.Required()),
	), s.handleGetActionSchema)

	s.mcp.AddTool(mcp.NewTool(ToolInvokeAction,
		mcp.WithDescription("Invoke one action with a payload matching its input schema."),
		mcp.WithString("resource", mcp.Required()),
		mcp.WithString("action", mcp.Required()),
		mcp.WithObject("payload", mcp.Required(), mcp.Description("Arguments object validated against the action schema.")),
	), s.handleInvoke)

	s.mcp.AddTool(mcp.NewTool(ToolGetActionSnippet,
		mcp.WithDescription("Generate example client code for one action."),
		mcp.WithString("resource", mcp.Required()),
		mcp.WithString("action", mcp.Required()),
		mcp.WithString("language", mcp.Required(), mcp.Enum(snippet.Languages()...)),
		mcp.WithObject("payload", mcp.Description("Optional example arguments.")),
	), s.handleSnippet)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (s *Server) handleListResources(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.dispatcher.ListResources(stringArg(req.GetArguments(), "topic"))
	if err != nil {
		return mcp.NewToolResultError(dispatch.Describe(err)), nil
	}
	return jsonResult(list)
}

func (s *Server) handleListResourceActions(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.dispatcher.ListResourceActions(stringArg(req.GetArguments(), "resource"))
	if err != nil {
		return mcp.NewToolResultError(dispatch.Describe(err)), nil
	}
	return jsonResult(list)
}

func (s *Server) handleGetActionSchema(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sc, err := s.dispatcher.GetResourceActionSchema(stringArg(args, "resource"), stringArg(args, "action"))
	if err != nil {
		return mcp.NewToolResultError(dispatch.Describe(err)), nil
	}
	return jsonResult(sc)
}

func (s *Server) handleInvoke(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	args := req.GetArguments()
	out := s.dispatcher.Invoke(ctx, stringArg(args, "resource"), stringArg(args, "action"), args["payload"])
	if out.IsError {
		return mcp.NewToolResultError(out.Text), nil
	}
	return mcp.NewToolResultText(out.Text), nil
}

func (s *Server) handleSnippet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	payload, _ := args["payload"].(map[string]any)
	text, err := s.dispatcher.Snippet(stringArg(args, "resource"), stringArg(args, "action"), stringArg(args, "language"), payload)
	if err != nil {
		return mcp.NewToolResultError(dispatch.Describe(err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(bytes.TrimRight(buf.Bytes(), "\n"))), nil
}
