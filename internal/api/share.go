package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type createRequestBody struct {
	Permission Permission `json:"permission"`
}

type respondBody struct {
	RequestID  string     `json:"requestId"`
	Action     Action     `json:"action"`
	Permission Permission `json:"permission,omitempty"`
}

// ShareStatus fetches the caller's own request state for a file. A file
// with no live request from the caller yields StateNone without error —
// the server answers 404 in that case and this is the one endpoint where
// that is not a failure.
func (c *Client) ShareStatus(ctx context.Context, fileID string) (*RequestStatus, error) {
	c.logger.Debug("fetching share status", slog.String("file_id", fileID))

	var resp statusResponse

	err := c.getJSON(ctx, "/files/share/"+fileID+"/status", &resp)
	if errors.Is(err, ErrNotFound) {
		return &RequestStatus{State: StateNone}, nil
	}

	if err != nil {
		return nil, err
	}

	status := &RequestStatus{
		State:      RequestState(resp.Status),
		Permission: Permission(resp.PermissionRequested),
	}

	if status.State == "" {
		status.State = StateNone
	}

	return status, nil
}

// ListRequests fetches all access requests for a file the caller owns.
// Server-assigned order is preserved — callers must not re-sort, so that
// unchanged data renders identically across refreshes.
func (c *Client) ListRequests(ctx context.Context, fileID string) ([]AccessRequest, error) {
	c.logger.Debug("listing access requests", slog.String("file_id", fileID))

	var resp []requestResponse
	if err := c.getJSON(ctx, "/files/share/"+fileID+"/requests", &resp); err != nil {
		return nil, err
	}

	requests := make([]AccessRequest, 0, len(resp))
	for i := range resp {
		requests = append(requests, resp[i].toAccessRequest(c.logger))
	}

	return requests, nil
}

// CreateRequest asks for access to a file the caller does not own. The
// server enforces at most one live request per (file, requester) pair;
// a concurrent duplicate surfaces as ErrConflict.
func (c *Client) CreateRequest(ctx context.Context, fileID string, permission Permission) error {
	if !permission.Valid() {
		return fmt.Errorf("api: invalid permission %q: %w", permission, ErrBadRequest)
	}

	c.logger.Info("creating access request",
		slog.String("file_id", fileID),
		slog.String("permission", string(permission)),
	)

	return c.postJSON(ctx, "/files/share/"+fileID+"/request", createRequestBody{Permission: permission}, nil)
}

// Respond resolves a pending access request on a file the caller owns.
// Approve carries the granted permission — which need not match what was
// requested; view and edit are independent grants. Reject carries none.
// Responding to an already-resolved request surfaces the server's
// ErrConflict or ErrNotFound; the request's terminal state is unchanged.
func (c *Client) Respond(ctx context.Context, fileID, requestID string, action Action, permission Permission) error {
	switch action {
	case ActionApprove:
		if !permission.Valid() {
			return fmt.Errorf("api: approve requires a permission: %w", ErrBadRequest)
		}
	case ActionReject:
		if permission != PermissionNone {
			return fmt.Errorf("api: reject does not take a permission: %w", ErrBadRequest)
		}
	default:
		return fmt.Errorf("api: invalid action %q: %w", action, ErrBadRequest)
	}

	c.logger.Info("responding to access request",
		slog.String("file_id", fileID),
		slog.String("request_id", requestID),
		slog.String("action", string(action)),
		slog.String("permission", string(permission)),
	)

	body := respondBody{RequestID: requestID, Action: action, Permission: permission}

	return c.postJSON(ctx, "/files/share/"+fileID+"/respond", body, nil)
}
