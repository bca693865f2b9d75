package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
)

// Guard errors raised before any network traffic.
var (
	// ErrAlreadyRequested means the caller already has a live (pending or
	// approved) request for the file.
	ErrAlreadyRequested = errors.New("share: access already requested")

	// ErrNotPending means the targeted request is no longer pending —
	// approved and rejected are terminal.
	ErrNotPending = errors.New("share: request is not pending")
)

// RequesterAPI is the server surface the requester-side tracker needs.
// *api.Client satisfies it; tests substitute fakes.
type RequesterAPI interface {
	ShareStatus(ctx context.Context, fileID string) (*api.RequestStatus, error)
	CreateRequest(ctx context.Context, fileID string, permission api.Permission) error
}

// OwnerAPI is the server surface the owner-side inbox needs.
type OwnerAPI interface {
	ListRequests(ctx context.Context, fileID string) ([]api.AccessRequest, error)
	Respond(ctx context.Context, fileID, requestID string, action api.Action, permission api.Permission) error
}

// RequestTracker tracks the caller's own access request for one file:
// none → pending → approved or rejected. A rejected request is a dead end
// for that instance; Request after rejection asks the server to open a new
// one. Failed operations never disturb the last known state.
type RequestTracker struct {
	mu     sync.Mutex
	client RequesterAPI
	fileID string
	status api.RequestStatus
	logger *slog.Logger
}

// NewRequestTracker creates a tracker for the caller's request on fileID,
// starting from the unknown (none) state until the first Refresh.
func NewRequestTracker(client RequesterAPI, fileID string, logger *slog.Logger) *RequestTracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &RequestTracker{
		client: client,
		fileID: fileID,
		status: api.RequestStatus{State: api.StateNone},
		logger: logger,
	}
}

// Status returns the last known request state and permission.
func (t *RequestTracker) Status() api.RequestStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

// Request asks the server for access with the given permission. Refused
// client-side with ErrAlreadyRequested while the cached state is pending
// or approved; the server enforces the same rule, so a request that slips
// through anyway (stale cache, a concurrent duplicate) comes back as a
// conflict and is treated as a no-op followed by a refresh.
func (t *RequestTracker) Request(ctx context.Context, permission api.Permission) error {
	if !permission.Valid() {
		return fmt.Errorf("share: invalid permission %q", permission)
	}

	t.mu.Lock()
	state := t.status.State
	t.mu.Unlock()

	if state == api.StatePending || state == api.StateApproved {
		return fmt.Errorf("%w (status %s)", ErrAlreadyRequested, state)
	}

	err := t.client.CreateRequest(ctx, t.fileID, permission)

	if errors.Is(err, api.ErrConflict) {
		// The server already holds a live request for this pair — ours or
		// a duplicate that won a race. Adopt the server's view.
		t.logger.Debug("request conflict, refreshing instead",
			slog.String("file_id", t.fileID),
		)

		return t.Refresh(ctx)
	}

	if err != nil {
		return err
	}

	t.mu.Lock()
	t.status = api.RequestStatus{State: api.StatePending, Permission: permission}
	t.mu.Unlock()

	t.logger.Info("access requested",
		slog.String("file_id", t.fileID),
		slog.String("permission", string(permission)),
	)

	return nil
}

// Refresh re-fetches the request state from the server. Idempotent; a file
// with no live request yields the none state without error. On failure the
// previously known state is retained.
func (t *RequestTracker) Refresh(ctx context.Context) error {
	status, err := t.client.ShareStatus(ctx, t.fileID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.status = *status
	t.mu.Unlock()

	return nil
}

// Inbox tracks the pending access requests for one owned file, from the
// owner's perspective. The request list always comes from the server in
// server-assigned order — Inbox never patches or re-sorts it locally.
type Inbox struct {
	mu       sync.Mutex
	client   OwnerAPI
	fileID   string
	requests []api.AccessRequest
	logger   *slog.Logger
}

// NewInbox creates an inbox for the requests on fileID, empty until the
// first Refresh.
func NewInbox(client OwnerAPI, fileID string, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}

	return &Inbox{client: client, fileID: fileID, logger: logger}
}

// Refresh re-fetches the request list. On failure the previously known
// list is retained.
func (b *Inbox) Refresh(ctx context.Context) ([]api.AccessRequest, error) {
	requests, err := b.client.ListRequests(ctx, b.fileID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.requests = requests
	b.mu.Unlock()

	return b.Requests(), nil
}

// Requests returns a copy of the last known request list, in server order.
func (b *Inbox) Requests() []api.AccessRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]api.AccessRequest, len(b.requests))
	copy(out, b.requests)

	return out
}

// PendingCount returns how many of the known requests are still pending.
// This count directly drives the displayed badge.
func (b *Inbox) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0

	for i := range b.requests {
		if b.requests[i].State == api.StatePending {
			n++
		}
	}

	return n
}

// Respond approves or rejects a request. Approvals carry the granted
// permission — independent of what was requested. A request the cache
// already shows as resolved is refused client-side with ErrNotPending;
// if the server disagrees with our cache in the other direction, its
// conflict or not-found answer triggers a refresh so the list reflects
// reality. After a successful response the list is re-fetched rather than
// patched, picking up whatever else the server decided.
func (b *Inbox) Respond(ctx context.Context, requestID string, action api.Action, permission api.Permission) error {
	b.mu.Lock()
	for i := range b.requests {
		if b.requests[i].ID == requestID && b.requests[i].State != api.StatePending {
			state := b.requests[i].State
			b.mu.Unlock()

			return fmt.Errorf("%w (status %s)", ErrNotPending, state)
		}
	}
	b.mu.Unlock()

	err := b.client.Respond(ctx, b.fileID, requestID, action, permission)

	if errors.Is(err, api.ErrConflict) || errors.Is(err, api.ErrNotFound) {
		// Already resolved elsewhere or gone. Surface the failure, but
		// refresh first so the caller's next look matches the server.
		b.logger.Debug("respond raced with server state, refreshing",
			slog.String("file_id", b.fileID),
			slog.String("request_id", requestID),
		)

		if _, refreshErr := b.Refresh(ctx); refreshErr != nil {
			b.logger.Warn("refresh after respond conflict failed",
				slog.String("error", refreshErr.Error()),
			)
		}

		return err
	}

	if err != nil {
		return err
	}

	b.logger.Info("responded to access request",
		slog.String("file_id", b.fileID),
		slog.String("request_id", requestID),
		slog.String("action", string(action)),
	)

	_, err = b.Refresh(ctx)

	return err
}
