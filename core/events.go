package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind identifies one of the directory-sync change events emitted by the
// SCIM handlers. The set is closed; Transform and the wire codec reject
// anything else.
type EventKind string

const (
	EventUserCreated      EventKind = "user.created"
	EventUserUpdated      EventKind = "user.updated"
	EventUserDeleted      EventKind = "user.deleted"
	EventGroupCreated     EventKind = "group.created"
	EventGroupUpdated     EventKind = "group.updated"
	EventGroupDeleted     EventKind = "group.deleted"
	EventGroupUserAdded   EventKind = "group.user_added"
	EventGroupUserRemoved EventKind = "group.user_removed"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventUserCreated, EventUserUpdated, EventUserDeleted,
		EventGroupCreated, EventGroupUpdated, EventGroupDeleted,
		EventGroupUserAdded, EventGroupUserRemoved:
		return true
	}
	return false
}

// IsUserEvent reports whether the event payload is a bare user projection.
func (k EventKind) IsUserEvent() bool {
	switch k {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return true
	}
	return false
}

// IsGroupEvent reports whether the event payload is a bare group projection.
func (k EventKind) IsGroupEvent() bool {
	switch k {
	case EventGroupCreated, EventGroupUpdated, EventGroupDeleted:
		return true
	}
	return false
}

// IsMembershipEvent reports whether the event payload carries a user
// projection with its group embedded.
func (k EventKind) IsMembershipEvent() bool {
	return k == EventGroupUserAdded || k == EventGroupUserRemoved
}

// User is the wire projection of a directory user.
type User struct {
	ID        string         `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Active    bool           `json:"active"`
	Roles     []string       `json:"roles,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// Group is the wire projection of a directory group.
type Group struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Raw  map[string]any `json:"raw,omitempty"`
}

// EventData is the tagged payload variant of a DirectorySyncEvent. Exactly
// one concrete shape exists per event family.
type EventData interface {
	eventData()
}

type UserEventData struct {
	User
}

func (UserEventData) eventData() {}

type GroupEventData struct {
	Group
}

func (GroupEventData) eventData() {}

// MembershipEventData is the composite payload for group.user_added and
// group.user_removed: user fields flat, group embedded.
type MembershipEventData struct {
	User
	Group Group `json:"group"`
}

func (MembershipEventData) eventData() {}

// DirectorySyncEvent is the wire-shape event delivered to tenant webhooks.
type DirectorySyncEvent struct {
	Event       EventKind `json:"event"`
	TenantID    string    `json:"tenant"`
	Product     string    `json:"product"`
	DirectoryID string    `json:"directory_id"`
	Data        EventData `json:"data"`
}

func (e DirectorySyncEvent) Validate() error {
	if !e.Event.Valid() {
		return fmt.Errorf("core: unknown event kind %q", string(e.Event))
	}
	if strings.TrimSpace(e.DirectoryID) == "" {
		return fmt.Errorf("core: event directory id is required")
	}
	if e.Data == nil {
		return fmt.Errorf("core: event data is required")
	}
	switch e.Data.(type) {
	case UserEventData, *UserEventData:
		if !e.Event.IsUserEvent() {
			return fmt.Errorf("core: %s cannot carry a user payload", e.Event)
		}
	case GroupEventData, *GroupEventData:
		if !e.Event.IsGroupEvent() {
			return fmt.Errorf("core: %s cannot carry a group payload", e.Event)
		}
	case MembershipEventData, *MembershipEventData:
		if !e.Event.IsMembershipEvent() {
			return fmt.Errorf("core: %s cannot carry a membership payload", e.Event)
		}
	default:
		return fmt.Errorf("core: unsupported event data type %T", e.Data)
	}
	return nil
}

// UnmarshalJSON decodes the tagged union, selecting the concrete data shape
// from the event kind. Needed when events round-trip through the store.
func (e *DirectorySyncEvent) UnmarshalJSON(data []byte) error {
	var head struct {
		Event       EventKind       `json:"event"`
		TenantID    string          `json:"tenant"`
		Product     string          `json:"product"`
		DirectoryID string          `json:"directory_id"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("core: decode directory sync event: %w", err)
	}
	if !head.Event.Valid() {
		return fmt.Errorf("core: unknown event kind %q", string(head.Event))
	}

	e.Event = head.Event
	e.TenantID = head.TenantID
	e.Product = head.Product
	e.DirectoryID = head.DirectoryID
	e.Data = nil
	if len(head.Data) == 0 || string(head.Data) == "null" {
		return fmt.Errorf("core: event data is required")
	}

	switch {
	case head.Event.IsUserEvent():
		var payload UserEventData
		if err := json.Unmarshal(head.Data, &payload); err != nil {
			return fmt.Errorf("core: decode user event data: %w", err)
		}
		e.Data = payload
	case head.Event.IsGroupEvent():
		var payload GroupEventData
		if err := json.Unmarshal(head.Data, &payload); err != nil {
			return fmt.Errorf("core: decode group event data: %w", err)
		}
		e.Data = payload
	default:
		var payload MembershipEventData
		if err := json.Unmarshal(head.Data, &payload); err != nil {
			return fmt.Errorf("core: decode membership event data: %w", err)
		}
		e.Data = payload
	}
	return nil
}

// EventStatus is the queue state of a stored event. Delivered events are
// deleted rather than kept in a terminal state.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusFailed     EventStatus = "failed"
)

// QueuedEvent is a durable queue record wrapping one DirectorySyncEvent.
type QueuedEvent struct {
	ID            string
	Event         DirectorySyncEvent
	RetryCount    int
	Status        EventStatus
	NextAttemptAt *time.Time
	CreatedAt     time.Time
}

// Webhook is a tenant-configured delivery target.
type Webhook struct {
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret"`
}

// Directory is the resolved configuration of one SCIM directory connection.
type Directory struct {
	ID               string
	TenantID         string
	Product          string
	Name             string
	Type             string
	Webhook          Webhook
	LogWebhookEvents bool
	Deactivated      bool
}

func (d Directory) Active() bool {
	return !d.Deactivated
}

// HasWebhook reports whether the directory carries a usable delivery target.
// A missing endpoint or a missing secret both make deliveries impossible, so
// either absence counts as unconfigured.
func (d Directory) HasWebhook() bool {
	return strings.TrimSpace(d.Webhook.Endpoint) != "" && strings.TrimSpace(d.Webhook.Secret) != ""
}

// WebhookEventLogEntry records one delivery attempt for the optional
// per-directory audit sink.
type WebhookEventLogEntry struct {
	ID          string
	DirectoryID string
	TenantID    string
	Product     string
	Endpoint    string
	Payload     any
	StatusCode  int
	Delivered   bool
	CreatedAt   time.Time
}
