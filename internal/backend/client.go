// Package backend defines the RPC boundary to the stateful content backend.
// The core consumes a single call contract: Send(command, args) returns a
// Response with status "ok" or "error". A connection failure is surfaced as
// an error response, never as a panic that aborts the pipeline.
package backend

import (
	"context"
)

// Status values for a backend response.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response is the result of one backend command.
type Response struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// OK reports whether the command succeeded.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// ErrorResponse builds an error response from a message.
func ErrorResponse(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// Backend is the single call contract the router core consumes.
// Implementations must never panic on transport failure; they return
// a StatusError response instead.
type Backend interface {
	Send(ctx context.Context, command string, args map[string]any) Response
}

// Commands issued by the scene context analyzer. The backend adapter
// translates these into whatever the content application speaks.
const (
	CmdGetState         = "get_state"          // mode, active object, selected object ids
	CmdGetObjects       = "get_objects"        // ordered object list
	CmdGetObjectDetail  = "get_object_detail"  // dimensions, location, materials, modifiers
	CmdGetEditSelection = "get_edit_selection" // vertex/edge/face counts and selected counts
)
