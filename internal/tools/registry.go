// Package tools binds the MCP tool catalog to the task manager facade
// and supplies the runner the worker pool executes tasks with. Every
// tool maps onto exactly one facade call. Handlers validate argument
// shape at the boundary, strip credentials from anything that is echoed
// or persisted, and never reach past the facade into the adapter, the
// queue or the store.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/mcp"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/service"
)

// Handlers owns the tool catalog over the task manager facade.
type Handlers struct {
	mgr           *service.Manager
	log           *logging.Logger
	allowFileURLs bool
	cloneDepth    int
	defaultRemote string
}

// NewHandlers builds the catalog against a facade. Configuration feeds
// only boundary defaults; execution behavior lives behind the facade.
func NewHandlers(mgr *service.Manager, cfg config.Config, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		mgr:           mgr,
		log:           log.WithComponent("tools"),
		allowFileURLs: cfg.Workspace.AllowFileURLs,
		cloneDepth:    cfg.Git.DefaultCloneDepth,
		defaultRemote: cfg.Git.DefaultRemote,
	}
}

// Register adds the full tool catalog to the server.
func (h *Handlers) Register(srv *mcp.Server) {
	h.registerWorkspaceTools(srv)
	h.registerRepoTools(srv)
	h.registerWorktreeTools(srv)
	h.registerHistoryTools(srv)
	h.registerBranchTools(srv)
	h.registerSyncTools(srv)
	h.registerStashTools(srv)
	h.registerTagTools(srv)
	h.registerRemoteTools(srv)
	h.registerLFSTools(srv)
	h.registerSubmoduleTools(srv)
	h.registerTaskTools(srv)
}

// target carries the two arguments shared by every repository-scoped
// tool. It embeds into per-tool argument structs.
type target struct {
	WorkspaceID    string `json:"workspace_id"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (tg target) options() service.TaskOptions {
	return service.TaskOptions{
		WorkspaceID: core.WorkspaceID(tg.WorkspaceID),
		Timeout:     time.Duration(tg.TimeoutSeconds) * time.Second,
	}
}

// decode unmarshals tool arguments into the handler's argument struct.
func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return core.ErrValidation(core.CodeInvalidParamValue,
			"arguments do not match the tool schema").WithCause(err)
	}
	return nil
}

// runSync executes a local operation inline and renders its payload.
func (h *Handlers) runSync(ctx context.Context, op core.Operation, params any, tg target) (*mcp.ToolCallResult, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return h.errorResult(core.ErrInternal("encode operation params").WithCause(err)), nil
	}
	payload, err := h.mgr.RunSync(ctx, op, raw, tg.options())
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.payloadResult(payload), nil
}

// submitAck is the immediate answer for async operations.
type submitAck struct {
	TaskID      core.TaskID      `json:"task_id"`
	Status      core.TaskStatus  `json:"status"`
	WorkspaceID core.WorkspaceID `json:"workspace_id,omitempty"`
}

// submit enqueues an async operation and acknowledges with the task ID.
func (h *Handlers) submit(ctx context.Context, op core.Operation, params any, opts service.TaskOptions) (*mcp.ToolCallResult, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return h.errorResult(core.ErrInternal("encode operation params").WithCause(err)), nil
	}
	task, err := h.mgr.Submit(ctx, op, raw, opts)
	if err != nil {
		return h.errorResult(err), nil
	}
	return h.jsonResult(submitAck{TaskID: task.ID, Status: task.Status, WorkspaceID: task.WorkspaceID})
}

// jsonResult renders a value as an indented JSON text block.
func (h *Handlers) jsonResult(v any) (*mcp.ToolCallResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return h.errorResult(core.ErrInternal("encode tool result").WithCause(err)), nil
	}
	return mcp.SuccessResult(string(payload)), nil
}

// payloadResult re-indents an already-serialized operation payload.
func (h *Handlers) payloadResult(payload json.RawMessage) *mcp.ToolCallResult {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return mcp.SuccessResult(string(payload))
	}
	return mcp.SuccessResult(buf.String())
}

// errorResult renders a failure as a structured IsError payload. The
// sanitizer pass is the last line of defense before text leaves the
// process.
func (h *Handlers) errorResult(err error) *mcp.ToolCallResult {
	payload, mErr := json.MarshalIndent(core.NewTaskError(err), "", "  ")
	if mErr != nil {
		return mcp.ErrorResult(h.log.Sanitize(err.Error()))
	}
	return mcp.ErrorResult(h.log.Sanitize(string(payload)))
}

// Schema shorthands. The catalog declares every property explicitly;
// these only cut the literal noise.

func stringProp(desc string) *mcp.PropertySchema {
	return &mcp.PropertySchema{Type: "string", Description: desc}
}

func boolProp(desc string) *mcp.PropertySchema {
	return &mcp.PropertySchema{Type: "boolean", Description: desc}
}

func intProp(desc string) *mcp.PropertySchema {
	return &mcp.PropertySchema{Type: "integer", Description: desc}
}

func stringArrayProp(desc string) *mcp.PropertySchema {
	return &mcp.PropertySchema{
		Type:        "array",
		Description: desc,
		Items:       &mcp.PropertySchema{Type: "string"},
	}
}

func enumProp(desc string, values ...string) *mcp.PropertySchema {
	return &mcp.PropertySchema{Type: "string", Description: desc, Enum: values}
}

func workspaceIDProp() *mcp.PropertySchema {
	return stringProp("Workspace ID the operation runs in")
}

func timeoutProp() *mcp.PropertySchema {
	return intProp("Per-call timeout override in seconds (1..86400)")
}

// objectSchema assembles the input schema for one tool.
func objectSchema(props map[string]*mcp.PropertySchema, required ...string) *mcp.InputSchema {
	return &mcp.InputSchema{Type: "object", Properties: props, Required: required}
}
