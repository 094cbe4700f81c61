package authz

import (
	"errors"
	"testing"

	"steeple/internal/domain"
)

func testEngine() Engine {
	return New(map[string][]string{
		"staff":  {"volunteer.manage", "room.allocate", "message.send"},
		"intern": {"message.send"},
	})
}

func TestDefaultDeny(t *testing.T) {
	e := testEngine()
	err := e.Authorize(domain.Actor{ID: "u1", Roles: []string{"intern"}}, "room.confirm", "room.allocate")
	var denied domain.AuthzDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want AuthzDeniedError", err)
	}
	if denied.Verb != "room.confirm" {
		t.Fatalf("denied verb = %s", denied.Verb)
	}
}

func TestNoRolesDenied(t *testing.T) {
	e := testEngine()
	err := e.Authorize(domain.Actor{ID: "u2"}, "sms.send", "message.send")
	var denied domain.AuthzDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want AuthzDeniedError", err)
	}
}

func TestUnknownPermissionDenied(t *testing.T) {
	e := testEngine()
	err := e.Authorize(domain.Actor{ID: "u1", Roles: []string{"staff"}}, "x", "no.such.permission")
	var denied domain.AuthzDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want AuthzDeniedError", err)
	}
}

func TestGrantedRolePasses(t *testing.T) {
	e := testEngine()
	if err := e.Authorize(domain.Actor{ID: "u1", Roles: []string{"intern", "staff"}}, "room.hold", "room.allocate"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
}

func TestPublicVerbAlwaysPasses(t *testing.T) {
	e := testEngine()
	if err := e.Authorize(domain.Actor{ID: "anon"}, "guest_pairing.request_create", ""); err != nil {
		t.Fatalf("public verb denied: %v", err)
	}
}

func TestPermissionsUnion(t *testing.T) {
	e := testEngine()
	perms := e.Permissions(domain.Actor{ID: "u1", Roles: []string{"intern", "staff"}})
	want := []string{"message.send", "room.allocate", "volunteer.manage"}
	if len(perms) != len(want) {
		t.Fatalf("perms = %v", perms)
	}
	for i := range want {
		if perms[i] != want[i] {
			t.Fatalf("perms = %v, want %v", perms, want)
		}
	}
}
