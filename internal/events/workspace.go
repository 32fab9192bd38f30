package events

// Event type constants for workspace lifecycle events.
const (
	TypeWorkspaceCreated     = "workspace_created"
	TypeWorkspaceQuarantined = "workspace_quarantined"
	TypeWorkspaceDeleted     = "workspace_deleted"
)

// WorkspaceCreatedEvent is emitted when a workspace directory is allocated.
type WorkspaceCreatedEvent struct {
	BaseEvent
	WorkspaceID string `json:"workspace_id"`
	RemoteURL   string `json:"remote_url,omitempty"`
}

// NewWorkspaceCreatedEvent creates a workspace created event. The remote
// URL must already be stripped of credentials by the caller.
func NewWorkspaceCreatedEvent(workspaceID, remoteURL string) WorkspaceCreatedEvent {
	return WorkspaceCreatedEvent{
		BaseEvent:   newBaseEvent(TypeWorkspaceCreated, ""),
		WorkspaceID: workspaceID,
		RemoteURL:   remoteURL,
	}
}

// WorkspaceQuarantinedEvent is emitted when a workspace is fenced off after
// a task died mid mutation.
type WorkspaceQuarantinedEvent struct {
	BaseEvent
	WorkspaceID string `json:"workspace_id"`
	Reason      string `json:"reason"`
}

// NewWorkspaceQuarantinedEvent creates a workspace quarantined event.
func NewWorkspaceQuarantinedEvent(taskID, workspaceID, reason string) WorkspaceQuarantinedEvent {
	return WorkspaceQuarantinedEvent{
		BaseEvent:   newBaseEvent(TypeWorkspaceQuarantined, taskID),
		WorkspaceID: workspaceID,
		Reason:      reason,
	}
}

// WorkspaceDeletedEvent is emitted when a workspace is removed.
type WorkspaceDeletedEvent struct {
	BaseEvent
	WorkspaceID string `json:"workspace_id"`
}

// NewWorkspaceDeletedEvent creates a workspace deleted event.
func NewWorkspaceDeletedEvent(workspaceID string) WorkspaceDeletedEvent {
	return WorkspaceDeletedEvent{
		BaseEvent:   newBaseEvent(TypeWorkspaceDeleted, ""),
		WorkspaceID: workspaceID,
	}
}
