package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
)

// maxLineBytes bounds a single request line. Tool arguments are small
// JSON objects; anything past this is a malformed or hostile stream.
const maxLineBytes = 4 * 1024 * 1024

// Server speaks MCP over a newline-delimited JSON-RPC byte stream,
// typically the process's stdin and stdout. Requests are handled
// serially in arrival order; diagnostics go to the logger, never to
// the protocol stream.
type Server struct {
	name         string
	version      string
	instructions string
	log          *logging.Logger

	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

type registeredTool struct {
	tool    Tool
	handler ToolHandler
}

// Option configures a Server.
type Option func(*Server)

// WithInstructions sets the usage notes returned from the initialize
// handshake.
func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer creates a server that identifies itself with the given name
// and version during the initialize handshake.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		name:    name,
		version: version,
		log:     logging.NewNop(),
		tools:   make(map[string]registeredTool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("mcp")
	return s
}

// RegisterTool adds a tool to the catalog. Registering a name twice
// replaces the handler but keeps the original catalog position.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}
	s.tools[tool.Name] = registeredTool{tool: tool, handler: handler}
}

// Tools returns the catalog in registration order.
func (s *Server) Tools() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].tool)
	}
	return out
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is cancelled. EOF is a clean shutdown and returns
// nil.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return fmt.Errorf("read request stream: %w", err)
				default:
					return nil
				}
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if resp := s.handle(ctx, line); resp != nil {
				if err := writeResponse(w, resp); err != nil {
					return fmt.Errorf("write response: %w", err)
				}
			}
		}
	}
}

// handle processes one raw request line. It returns nil when no
// response must be sent, which is the case for notifications.
func (s *Server) handle(ctx context.Context, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn("unparseable request", "error", err)
		return errorResponse(nil, codeParseError, "parse error")
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, codeInvalidRequest, "unsupported jsonrpc version")
	}

	if req.isNotification() {
		s.log.Debug("notification received", "method", req.Method)
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return &response{JSONRPC: "2.0", ID: req.ID, Result: struct{}{}}
	case "tools/list":
		return &response{JSONRPC: "2.0", ID: req.ID, Result: toolListResult{Tools: s.Tools()}}
	case "tools/call":
		return s.handleToolCall(ctx, req)
	default:
		s.log.Debug("unknown method", "method", req.Method)
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleInitialize(req request) *response {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid initialize params")
		}
	}
	s.log.Info("client connected",
		"client_protocol", params.ProtocolVersion,
		"tools", len(s.order))
	return &response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    capabilities{Tools: toolCapabilities{ListChanged: false}},
			ServerInfo:      serverInfo{Name: s.name, Version: s.version},
			Instructions:    s.instructions,
		},
	}
}

func (s *Server) handleToolCall(ctx context.Context, req request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params")
	}

	s.mu.RLock()
	reg, ok := s.tools[params.Name]
	s.mu.RUnlock()
	if !ok {
		msg := fmt.Sprintf("unknown tool %q", params.Name)
		if hint := s.closestTool(params.Name); hint != "" {
			msg = fmt.Sprintf("unknown tool %q (did you mean %q?)", params.Name, hint)
		}
		return errorResponse(req.ID, codeInvalidParams, msg)
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := s.invoke(ctx, params.Name, reg.handler, args)
	if err != nil {
		s.log.Warn("tool call failed", "tool", params.Name, "error", err)
		result = ErrorResult(s.log.Sanitize(err.Error()))
	}
	if result == nil {
		result = SuccessResult("")
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// invoke runs a handler with panic containment so one bad tool cannot
// take the whole protocol stream down.
func (s *Server) invoke(ctx context.Context, name string, handler ToolHandler, args json.RawMessage) (result *ToolCallResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tool handler panicked", "tool", name, "panic", r)
			result = nil
			err = fmt.Errorf("internal error in tool %q", name)
		}
	}()
	return handler(ctx, args)
}

// closestTool suggests a registered name for a mistyped one.
func (s *Server) closestTool(name string) string {
	s.mu.RLock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	s.mu.RUnlock()
	sort.Strings(names)

	matches := fuzzy.Find(name, names)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

func errorResponse(id json.RawMessage, code int, message string) *response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

func writeResponse(w io.Writer, resp *response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
