// Package protocol defines the API request/response types.
package protocol

import (
	"github.com/sly67/treedesk/pkg/models"
)

// ListResponse is returned by GET /api/files?path=
type ListResponse []models.Entry

// CreateRequest is the body for POST /api/files.
type CreateRequest struct {
	Path string      `json:"path"`
	Name string      `json:"name"`
	Type models.Kind `json:"type"`
}

// RenameRequest is the body for PATCH /api/files.
type RenameRequest struct {
	Path    string `json:"path"`
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

// DeleteRequest is the body for DELETE /api/files.
type DeleteRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// WriteContentRequest is the body for POST /api/content.
// Data is base64 encoded on the wire.
type WriteContentRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// SuccessResponse is returned by mutating endpoints.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// Event types carried on the /api/v1/events stream.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
	EventRename = "rename"
)

// SSEEvent represents a server-sent change notification. Path is the full
// path of the affected entry; for renames From holds the previous path.
type SSEEvent struct {
	Type      string      `json:"type"`
	Path      string      `json:"path"`
	From      string      `json:"from,omitempty"`
	Kind      models.Kind `json:"kind,omitempty"`
	Size      int64       `json:"size,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
