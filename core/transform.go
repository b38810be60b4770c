package core

import (
	"fmt"
	"strings"
)

// TransformInput carries the raw SCIM projections for one change event.
type TransformInput struct {
	Directory Directory
	User      *User
	Group     *Group
}

// Transform produces the wire-shape event for one directory change. It is
// pure and stateless; SCIM handlers invoke it once per change before pushing
// (or before a synchronous direct send when batching is disabled).
func Transform(kind EventKind, in TransformInput) (DirectorySyncEvent, error) {
	if !kind.Valid() {
		return DirectorySyncEvent{}, fmt.Errorf("core: unknown event kind %q", string(kind))
	}
	directoryID := strings.TrimSpace(in.Directory.ID)
	if directoryID == "" {
		return DirectorySyncEvent{}, fmt.Errorf("core: directory id is required")
	}

	event := DirectorySyncEvent{
		Event:       kind,
		TenantID:    in.Directory.TenantID,
		Product:     in.Directory.Product,
		DirectoryID: directoryID,
	}

	switch {
	case kind.IsUserEvent():
		if in.User == nil {
			return DirectorySyncEvent{}, fmt.Errorf("core: %s requires a user projection", kind)
		}
		event.Data = UserEventData{User: *in.User}
	case kind.IsGroupEvent():
		if in.Group == nil {
			return DirectorySyncEvent{}, fmt.Errorf("core: %s requires a group projection", kind)
		}
		event.Data = GroupEventData{Group: *in.Group}
	default:
		if in.User == nil || in.Group == nil {
			return DirectorySyncEvent{}, fmt.Errorf("core: %s requires user and group projections", kind)
		}
		event.Data = MembershipEventData{User: *in.User, Group: *in.Group}
	}
	return event, nil
}
