package share

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
)

// fakeRequesterAPI implements RequesterAPI with scripted responses.
type fakeRequesterAPI struct {
	status     api.RequestStatus
	statusErr  error
	createErr  error
	statusCall int
	createCall int
}

func (f *fakeRequesterAPI) ShareStatus(_ context.Context, _ string) (*api.RequestStatus, error) {
	f.statusCall++

	if f.statusErr != nil {
		return nil, f.statusErr
	}

	status := f.status

	return &status, nil
}

func (f *fakeRequesterAPI) CreateRequest(_ context.Context, _ string, _ api.Permission) error {
	f.createCall++

	return f.createErr
}

// fakeOwnerAPI implements OwnerAPI with scripted responses.
type fakeOwnerAPI struct {
	requests    []api.AccessRequest
	listErr     error
	respondErr  error
	listCall    int
	respondCall int
}

func (f *fakeOwnerAPI) ListRequests(_ context.Context, _ string) ([]api.AccessRequest, error) {
	f.listCall++

	if f.listErr != nil {
		return nil, f.listErr
	}

	out := make([]api.AccessRequest, len(f.requests))
	copy(out, f.requests)

	return out, nil
}

func (f *fakeOwnerAPI) Respond(_ context.Context, _, _ string, _ api.Action, _ api.Permission) error {
	f.respondCall++

	return f.respondErr
}

func TestRequestTracker_InitialStateIsNone(t *testing.T) {
	tracker := NewRequestTracker(&fakeRequesterAPI{}, "f1", nil)

	assert.Equal(t, api.StateNone, tracker.Status().State)
}

func TestRequestTracker_RequestMovesToPending(t *testing.T) {
	fake := &fakeRequesterAPI{}
	tracker := NewRequestTracker(fake, "f1", nil)

	require.NoError(t, tracker.Request(context.Background(), api.PermissionView))

	status := tracker.Status()
	assert.Equal(t, api.StatePending, status.State)
	assert.Equal(t, api.PermissionView, status.Permission)
	assert.Equal(t, 1, fake.createCall)
}

func TestRequestTracker_RequestRefusedWhilePending(t *testing.T) {
	fake := &fakeRequesterAPI{status: api.RequestStatus{State: api.StatePending}}
	tracker := NewRequestTracker(fake, "f1", nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	err := tracker.Request(context.Background(), api.PermissionEdit)
	assert.ErrorIs(t, err, ErrAlreadyRequested)
	assert.Zero(t, fake.createCall, "no network call when refused client-side")
}

func TestRequestTracker_RequestRefusedWhileApproved(t *testing.T) {
	fake := &fakeRequesterAPI{status: api.RequestStatus{State: api.StateApproved, Permission: api.PermissionView}}
	tracker := NewRequestTracker(fake, "f1", nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	err := tracker.Request(context.Background(), api.PermissionView)
	assert.ErrorIs(t, err, ErrAlreadyRequested)
	assert.Zero(t, fake.createCall)
}

func TestRequestTracker_RequestAllowedAfterRejection(t *testing.T) {
	fake := &fakeRequesterAPI{status: api.RequestStatus{State: api.StateRejected}}
	tracker := NewRequestTracker(fake, "f1", nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	require.NoError(t, tracker.Request(context.Background(), api.PermissionEdit))
	assert.Equal(t, api.StatePending, tracker.Status().State)
}

func TestRequestTracker_RequestInvalidPermission(t *testing.T) {
	fake := &fakeRequesterAPI{}
	tracker := NewRequestTracker(fake, "f1", nil)

	require.Error(t, tracker.Request(context.Background(), api.Permission("all")))
	require.Error(t, tracker.Request(context.Background(), api.PermissionNone))
	assert.Zero(t, fake.createCall)
}

func TestRequestTracker_ConflictIsNoopPlusRefresh(t *testing.T) {
	// The server already holds a pending request this tracker does not know
	// about; its conflict answer must leave us adopting the server's view.
	fake := &fakeRequesterAPI{
		status:    api.RequestStatus{State: api.StatePending, Permission: api.PermissionView},
		createErr: fmt.Errorf("dup: %w", api.ErrConflict),
	}
	tracker := NewRequestTracker(fake, "f1", nil)

	err := tracker.Request(context.Background(), api.PermissionEdit)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.createCall)
	assert.Equal(t, 1, fake.statusCall, "conflict triggers a refresh")
	assert.Equal(t, api.StatePending, tracker.Status().State)
	assert.Equal(t, api.PermissionView, tracker.Status().Permission)
}

func TestRequestTracker_FailedRequestRetainsState(t *testing.T) {
	fake := &fakeRequesterAPI{createErr: errors.New("network down")}
	tracker := NewRequestTracker(fake, "f1", nil)

	err := tracker.Request(context.Background(), api.PermissionView)
	require.Error(t, err)
	assert.Equal(t, api.StateNone, tracker.Status().State)
}

func TestRequestTracker_FailedRefreshRetainsState(t *testing.T) {
	fake := &fakeRequesterAPI{status: api.RequestStatus{State: api.StateApproved, Permission: api.PermissionEdit}}
	tracker := NewRequestTracker(fake, "f1", nil)
	require.NoError(t, tracker.Refresh(context.Background()))

	fake.statusErr = errors.New("server unavailable")

	require.Error(t, tracker.Refresh(context.Background()))

	status := tracker.Status()
	assert.Equal(t, api.StateApproved, status.State)
	assert.Equal(t, api.PermissionEdit, status.Permission)
}

func TestInbox_RefreshAndPendingCount(t *testing.T) {
	fake := &fakeOwnerAPI{requests: []api.AccessRequest{
		{ID: "r1", State: api.StatePending},
		{ID: "r2", State: api.StateApproved},
		{ID: "r3", State: api.StatePending},
	}}
	inbox := NewInbox(fake, "f1", nil)

	assert.Zero(t, inbox.PendingCount())

	requests, err := inbox.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.Equal(t, 2, inbox.PendingCount())
}

func TestInbox_PreservesServerOrder(t *testing.T) {
	fake := &fakeOwnerAPI{requests: []api.AccessRequest{
		{ID: "r3"}, {ID: "r1"}, {ID: "r2"},
	}}
	inbox := NewInbox(fake, "f1", nil)

	requests, err := inbox.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "r3", requests[0].ID)
	assert.Equal(t, "r1", requests[1].ID)
	assert.Equal(t, "r2", requests[2].ID)
}

func TestInbox_FailedRefreshRetainsList(t *testing.T) {
	fake := &fakeOwnerAPI{requests: []api.AccessRequest{{ID: "r1", State: api.StatePending}}}
	inbox := NewInbox(fake, "f1", nil)

	_, err := inbox.Refresh(context.Background())
	require.NoError(t, err)

	fake.listErr = errors.New("server unavailable")

	_, err = inbox.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, inbox.Requests(), 1)
	assert.Equal(t, 1, inbox.PendingCount())
}

func TestInbox_RespondRefetchesList(t *testing.T) {
	fake := &fakeOwnerAPI{requests: []api.AccessRequest{{ID: "r1", State: api.StatePending}}}
	inbox := NewInbox(fake, "f1", nil)

	_, err := inbox.Refresh(context.Background())
	require.NoError(t, err)

	// The server flips the request to approved once we respond.
	fake.requests = []api.AccessRequest{{ID: "r1", State: api.StateApproved, Permission: api.PermissionView}}

	require.NoError(t, inbox.Respond(context.Background(), "r1", api.ActionApprove, api.PermissionView))
	assert.Equal(t, 1, fake.respondCall)
	assert.Equal(t, 2, fake.listCall, "respond re-fetches instead of patching")

	requests := inbox.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, api.StateApproved, requests[0].State)
	assert.Zero(t, inbox.PendingCount())
}

func TestInbox_RespondRefusedForResolvedRequest(t *testing.T) {
	fake := &fakeOwnerAPI{requests: []api.AccessRequest{{ID: "r1", State: api.StateRejected}}}
	inbox := NewInbox(fake, "f1", nil)

	_, err := inbox.Refresh(context.Background())
	require.NoError(t, err)

	err = inbox.Respond(context.Background(), "r1", api.ActionApprove, api.PermissionView)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Zero(t, fake.respondCall, "terminal state refused client-side")
}

func TestInbox_RespondConflictRefreshesAndSurfaces(t *testing.T) {
	// Our cache says pending but another session already resolved it.
	fake := &fakeOwnerAPI{
		requests:   []api.AccessRequest{{ID: "r1", State: api.StatePending}},
		respondErr: fmt.Errorf("resolved: %w", api.ErrConflict),
	}
	inbox := NewInbox(fake, "f1", nil)

	_, err := inbox.Refresh(context.Background())
	require.NoError(t, err)

	fake.requests = []api.AccessRequest{{ID: "r1", State: api.StateApproved}}

	err = inbox.Respond(context.Background(), "r1", api.ActionReject, api.PermissionNone)
	assert.ErrorIs(t, err, api.ErrConflict)

	// The failure surfaced, but the list now matches the server.
	requests := inbox.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, api.StateApproved, requests[0].State)
}

func TestInbox_RespondUnknownRequestPassesThrough(t *testing.T) {
	// A request id we have never seen is the server's call to judge.
	fake := &fakeOwnerAPI{respondErr: fmt.Errorf("gone: %w", api.ErrNotFound)}
	inbox := NewInbox(fake, "f1", nil)

	err := inbox.Respond(context.Background(), "r-unknown", api.ActionReject, api.PermissionNone)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, 1, fake.respondCall)
}
