package core

import (
	"testing"
)

func TestTransformUserEvent(t *testing.T) {
	directory := testDirectory("dir_1")
	user := &User{ID: "usr_1", FirstName: "Jam", LastName: "Doe", Email: "jam@acme.test", Active: true}

	event, err := Transform(EventUserCreated, TransformInput{Directory: directory, User: user})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if event.Event != EventUserCreated {
		t.Fatalf("unexpected kind %q", event.Event)
	}
	if event.TenantID != "acme" || event.Product != "demo" || event.DirectoryID != "dir_1" {
		t.Fatalf("unexpected envelope: %+v", event)
	}
	data, ok := event.Data.(UserEventData)
	if !ok {
		t.Fatalf("expected user payload, got %T", event.Data)
	}
	if data.Email != "jam@acme.test" {
		t.Fatalf("unexpected user payload: %+v", data)
	}
}

func TestTransformGroupEvent(t *testing.T) {
	event, err := Transform(EventGroupDeleted, TransformInput{
		Directory: testDirectory("dir_1"),
		Group:     &Group{ID: "grp_1", Name: "Engineering"},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	data, ok := event.Data.(GroupEventData)
	if !ok {
		t.Fatalf("expected group payload, got %T", event.Data)
	}
	if data.Name != "Engineering" {
		t.Fatalf("unexpected group payload: %+v", data)
	}
}

func TestTransformMembershipEvent(t *testing.T) {
	event, err := Transform(EventGroupUserAdded, TransformInput{
		Directory: testDirectory("dir_1"),
		User:      &User{ID: "usr_1", Email: "jam@acme.test"},
		Group:     &Group{ID: "grp_1", Name: "Engineering"},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	data, ok := event.Data.(MembershipEventData)
	if !ok {
		t.Fatalf("expected membership payload, got %T", event.Data)
	}
	if data.User.ID != "usr_1" || data.Group.ID != "grp_1" {
		t.Fatalf("unexpected membership payload: %+v", data)
	}
}

func TestTransformValidation(t *testing.T) {
	directory := testDirectory("dir_1")
	cases := []struct {
		name string
		kind EventKind
		in   TransformInput
	}{
		{"unknown kind", EventKind("user.renamed"), TransformInput{Directory: directory, User: &User{ID: "u"}}},
		{"missing directory id", EventUserCreated, TransformInput{User: &User{ID: "u"}}},
		{"user event without user", EventUserDeleted, TransformInput{Directory: directory}},
		{"group event without group", EventGroupUpdated, TransformInput{Directory: directory}},
		{"membership without group", EventGroupUserRemoved, TransformInput{Directory: directory, User: &User{ID: "u"}}},
		{"membership without user", EventGroupUserAdded, TransformInput{Directory: directory, Group: &Group{ID: "g"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Transform(tc.kind, tc.in); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
