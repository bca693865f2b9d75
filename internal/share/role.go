// Package share implements the access-control state machine for one file:
// ownership classification, the requester's request lifecycle, the owner's
// request inbox, and the refresh scheduler that keeps all of it in step
// with the server.
package share

import "github.com/SunnyJalendra/minidrive-go/internal/api"

// Role classifies the caller's relationship to one file.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleRequester Role = "requester"
)

// Resolve classifies the caller as owner or requester of fileID. A file is
// owned iff its id appears, by exact string identity, in the caller's
// owned-file set. Anything else — not owned, deleted, never existed — is
// RoleRequester; the listing endpoint does not distinguish those cases and
// neither does the resolver. Pure function, no caching: callers recompute
// whenever the owned set or the target file changes.
func Resolve(fileID string, owned []api.FileRecord) Role {
	for i := range owned {
		if owned[i].ID == fileID {
			return RoleOwner
		}
	}

	return RoleRequester
}

// RoleIndex answers the same question as Resolve from a prebuilt id set.
// Same observable contract; built once per listing for callers that
// classify many files against it (the watch loop).
type RoleIndex map[string]struct{}

// NewRoleIndex builds an index over the caller's owned files.
func NewRoleIndex(owned []api.FileRecord) RoleIndex {
	idx := make(RoleIndex, len(owned))
	for i := range owned {
		idx[owned[i].ID] = struct{}{}
	}

	return idx
}

// Resolve classifies fileID against the indexed owned set.
func (idx RoleIndex) Resolve(fileID string) Role {
	if _, ok := idx[fileID]; ok {
		return RoleOwner
	}

	return RoleRequester
}
