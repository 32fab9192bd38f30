// Package mcp implements the server side of the Model Context Protocol
// over newline-delimited JSON-RPC 2.0. It owns the wire framing and the
// tool registry; tool semantics live in the handlers registered on the
// Server.
package mcp

import (
	"context"
	"encoding/json"
)

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// request is an incoming JSON-RPC 2.0 request or notification. A nil ID
// marks a notification and must not be answered.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// response is an outgoing JSON-RPC 2.0 response. Exactly one of Result
// and Error is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Tool describes a callable tool as advertised by tools/list.
type Tool struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema *InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON Schema fragment describing a tool's arguments.
type InputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*PropertySchema `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// PropertySchema describes a single argument property.
type PropertySchema struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description,omitempty"`
	Enum        []string                   `json:"enum,omitempty"`
	Default     any                        `json:"default,omitempty"`
	Items       *PropertySchema            `json:"items,omitempty"`
	Properties  map[string]*PropertySchema `json:"properties,omitempty"`
	Required    []string                   `json:"required,omitempty"`
}

// toolCallParams are the params of a tools/call request.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ContentBlock is a single piece of tool output. Only text blocks are
// produced by this server.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the result of a tools/call invocation. IsError marks
// domain failures; protocol failures use JSON-RPC errors instead.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// SuccessResult wraps text in a successful tool result.
func SuccessResult(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

// ErrorResult wraps text in a failed tool result.
func ErrorResult(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

// ToolHandler executes a tool call. Returned errors are rendered as
// IsError results, never as JSON-RPC protocol errors.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

// initializeResult answers the initialize handshake.
type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
	Instructions    string       `json:"instructions,omitempty"`
}

type capabilities struct {
	Tools toolCapabilities `json:"tools"`
}

type toolCapabilities struct {
	ListChanged bool `json:"listChanged"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolListResult answers tools/list. Pagination is not needed for a
// fixed catalog, so the cursor fields are omitted.
type toolListResult struct {
	Tools []Tool `json:"tools"`
}
