package api

import (
	"log/slog"
	"time"
)

// Permission is a capability level a requester can ask for or an owner can
// grant. View and edit are independent grants — approving edit does not
// imply view.
type Permission string

const (
	PermissionNone Permission = ""
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is one of the grantable permissions.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// RequestState is the lifecycle status of an access request. Pending may
// move to approved or rejected; approved and rejected are terminal for that
// request instance. A fresh request after rejection is a new instance.
type RequestState string

const (
	StateNone     RequestState = "none"
	StatePending  RequestState = "pending"
	StateApproved RequestState = "approved"
	StateRejected RequestState = "rejected"
)

// Action is an owner's response to a pending access request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// User is the immutable snapshot returned by the auth endpoints.
type User struct {
	ID      string
	Email   string
	IsAdmin bool
}

// FileRecord describes one server-side file. The client only reads these —
// ownership classification and display — and never mutates them directly.
type FileRecord struct {
	ID           string
	OwnerID      string
	OwnerEmail   string
	OriginalName string
	SizeBytes    int64
	CreatedAt    time.Time
}

// FileListing is the result of the file-listing endpoint: files the caller
// owns and files shared with the caller, in server order.
type FileListing struct {
	Owned  []FileRecord
	Shared []FileRecord
}

// AccessRequest is one requester's ask for permission on one file.
type AccessRequest struct {
	ID             string
	FileID         string
	RequesterID    string
	RequesterEmail string
	Permission     Permission
	State          RequestState
	CreatedAt      time.Time
}

// RequestStatus is the caller's own request state for a file, as reported
// by the status endpoint. After approval, Permission reflects the owner's
// grant, which may differ from the permission originally requested.
type RequestStatus struct {
	State      RequestState
	Permission Permission
}

// Wire types mirror the server JSON exactly. Unexported — callers only see
// the normalized types above. The server stores documents in MongoDB, so
// record identifiers arrive as "_id".

type userPayload struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

type ownerRef struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

type fileResponse struct {
	ID           string    `json:"_id"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	CreatedAt    string    `json:"createdAt"`
	Owner        *ownerRef `json:"owner"`
}

type listFilesResponse struct {
	Owned  []fileResponse `json:"owned"`
	Shared []fileResponse `json:"shared"`
}

type requesterRef struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

type requestResponse struct {
	ID                  string        `json:"_id"`
	File                string        `json:"file"`
	Requester           *requesterRef `json:"requester"`
	PermissionRequested string        `json:"permissionRequested"`
	Status              string        `json:"status"`
	CreatedAt           string        `json:"createdAt"`
}

type statusResponse struct {
	Status              string `json:"status"`
	PermissionRequested string `json:"permissionRequested"`
}

// toFileRecord normalizes a server file document.
func (f *fileResponse) toFileRecord(logger *slog.Logger) FileRecord {
	rec := FileRecord{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		SizeBytes:    f.Size,
		CreatedAt:    parseTimestamp(f.CreatedAt, "createdAt", f.ID, logger),
	}

	if f.Owner != nil {
		rec.OwnerID = f.Owner.ID
		rec.OwnerEmail = f.Owner.Email
	}

	return rec
}

// toAccessRequest normalizes a server access-request document.
func (r *requestResponse) toAccessRequest(logger *slog.Logger) AccessRequest {
	req := AccessRequest{
		ID:         r.ID,
		FileID:     r.File,
		Permission: Permission(r.PermissionRequested),
		State:      RequestState(r.Status),
		CreatedAt:  parseTimestamp(r.CreatedAt, "createdAt", r.ID, logger),
	}

	if r.Requester != nil {
		req.RequesterID = r.Requester.ID
		req.RequesterEmail = r.Requester.Email
	}

	return req
}

// parseTimestamp parses an RFC3339 timestamp. Missing or malformed
// timestamps are logged and replaced with the zero time — the server is
// authoritative and the client only uses these for display.
func parseTimestamp(raw, field, id string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp in server response",
			slog.String("field", field),
			slog.String("id", id),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}
