package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
	"github.com/SunnyJalendra/minidrive-go/internal/share"
)

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage who can view or edit a file",
	}

	cmd.AddCommand(newShareStatusCmd())
	cmd.AddCommand(newShareRequestCmd())
	cmd.AddCommand(newShareRequestsCmd())
	cmd.AddCommand(newShareRespondCmd())

	return cmd
}

func newShareStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <file-id>",
		Short: "Show your role for a file and the request state",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareStatus,
	}
}

func newShareRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <file-id>",
		Short: "Request access to a file you do not own",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareRequest,
	}

	cmd.Flags().String("permission", "view", "permission to request: view or edit")

	return cmd
}

func newShareRequestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests <file-id>",
		Short: "List access requests for a file you own",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareRequests,
	}
}

func newShareRespondCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond <file-id> <request-id> <approve|reject>",
		Short: "Approve or reject an access request on a file you own",
		Args:  cobra.ExactArgs(3),
		RunE:  runShareRespond,
	}

	cmd.Flags().String("permission", "", "permission to grant on approve: view or edit")

	return cmd
}

// resolveRole fetches the caller's owned-file set and classifies them for
// fileID. Role is always recomputed from a fresh listing — never cached
// across files or sessions.
func resolveRole(ctx context.Context, env *appEnv, fileID string) (share.Role, error) {
	listing, err := env.client.ListFiles(ctx)
	if err != nil {
		return "", fmt.Errorf("verifying ownership: %w", err)
	}

	return share.Resolve(fileID, listing.Owned), nil
}

// shareStatusOutput is the JSON schema for `share status --json`.
type shareStatusOutput struct {
	FileID     string           `json:"file_id"`
	Role       share.Role       `json:"role"`
	State      api.RequestState `json:"state,omitempty"`
	Permission api.Permission   `json:"permission,omitempty"`
	Pending    int              `json:"pending_requests,omitempty"`
}

func runShareStatus(_ *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	ctx := context.Background()
	fileID := args[0]

	role, err := resolveRole(ctx, env, fileID)
	if err != nil {
		return err
	}

	out := shareStatusOutput{FileID: fileID, Role: role}

	if role == share.RoleOwner {
		inbox := share.NewInbox(env.client, fileID, env.logger)

		if _, err := inbox.Refresh(ctx); err != nil {
			return err
		}

		out.Pending = inbox.PendingCount()
	} else {
		tracker := share.NewRequestTracker(env.client, fileID, env.logger)

		if err := tracker.Refresh(ctx); err != nil {
			return err
		}

		status := tracker.Status()
		out.State = status.State
		out.Permission = status.Permission

		cacheRequestStatus(ctx, env, fileID, status)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("File: %s\n", fileID)
	fmt.Printf("Role: %s\n", out.Role)

	if role == share.RoleOwner {
		fmt.Printf("Pending requests: %d\n", out.Pending)
	} else {
		fmt.Printf("Your request: %s", out.State)

		if out.Permission != api.PermissionNone {
			fmt.Printf(" (%s)", out.Permission)
		}

		fmt.Println()
	}

	return nil
}

// cacheRequestStatus records the latest request status locally. Cache
// failures are logged, never surfaced — the live answer was already
// obtained.
func cacheRequestStatus(ctx context.Context, env *appEnv, fileID string, status api.RequestStatus) {
	store := openCache(env)
	if store == nil {
		return
	}
	defer store.Close()

	if err := store.SaveRequestStatus(ctx, fileID, status); err != nil {
		env.logger.Warn("caching request status failed", "error", err.Error())
	}
}

func runShareRequest(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	ctx := context.Background()
	fileID := args[0]

	permFlag, _ := cmd.Flags().GetString("permission")
	permission := api.Permission(permFlag)

	if !permission.Valid() {
		return fmt.Errorf("permission must be %q or %q", api.PermissionView, api.PermissionEdit)
	}

	role, err := resolveRole(ctx, env, fileID)
	if err != nil {
		return err
	}

	if role == share.RoleOwner {
		return fmt.Errorf("you own this file — no access request needed")
	}

	tracker := share.NewRequestTracker(env.client, fileID, env.logger)

	// Populate the guard from live state before dispatching.
	if err := tracker.Refresh(ctx); err != nil {
		return err
	}

	if err := tracker.Request(ctx, permission); err != nil {
		return err
	}

	status := tracker.Status()
	cacheRequestStatus(ctx, env, fileID, status)

	statusf("Request %s. Status: %s.\n", permission, status.State)

	return nil
}

// requestRow is the JSON schema for one request in `share requests --json`.
type requestRow struct {
	ID         string           `json:"id"`
	Requester  string           `json:"requester"`
	Permission api.Permission   `json:"permission"`
	State      api.RequestState `json:"state"`
}

func runShareRequests(_ *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	ctx := context.Background()
	fileID := args[0]

	inbox := share.NewInbox(env.client, fileID, env.logger)

	requests, err := inbox.Refresh(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		rows := make([]requestRow, 0, len(requests))
		for i := range requests {
			rows = append(rows, requestRow{
				ID:         requests[i].ID,
				Requester:  requests[i].RequesterEmail,
				Permission: requests[i].Permission,
				State:      requests[i].State,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	}

	fmt.Printf("%d pending\n", inbox.PendingCount())

	if len(requests) == 0 {
		fmt.Println("No requests")
		return nil
	}

	rows := make([][]string, 0, len(requests))
	for i := range requests {
		r := &requests[i]
		rows = append(rows, []string{r.ID, r.RequesterEmail, string(r.Permission), string(r.State)})
	}

	printTable(os.Stdout, []string{"ID", "REQUESTER", "REQUESTED", "STATUS"}, rows)

	return nil
}

func runShareRespond(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	ctx := context.Background()
	fileID, requestID := args[0], args[1]
	action := api.Action(args[2])

	permFlag, _ := cmd.Flags().GetString("permission")
	permission := api.Permission(permFlag)

	inbox := share.NewInbox(env.client, fileID, env.logger)

	// Load current state so the pending guard sees what the server sees.
	if _, err := inbox.Refresh(ctx); err != nil {
		return err
	}

	if err := inbox.Respond(ctx, requestID, action, permission); err != nil {
		return err
	}

	statusf("Request %s: %s.\n", requestID, action)

	// The refreshed list is the authoritative outcome.
	requests := inbox.Requests()
	for i := range requests {
		if requests[i].ID == requestID {
			statusf("Final status: %s", requests[i].State)

			if requests[i].Permission != api.PermissionNone {
				statusf(" (%s)", requests[i].Permission)
			}

			statusf("\n")
		}
	}

	return nil
}
