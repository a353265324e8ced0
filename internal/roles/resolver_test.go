package roles

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"

	"craftly/marketplace/internal/model"
)

type fakeLookup struct {
	users map[string]model.User
	calls int
}

func (f *fakeLookup) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	f.calls++
	user, ok := f.users[email]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func TestResolveKnownUser(t *testing.T) {
	lookup := &fakeLookup{users: map[string]model.User{
		"admin@demo.local": {Email: "admin@demo.local", Role: model.RoleAdmin},
	}}
	resolver := NewResolver(lookup, nil, 0)

	role, err := resolver.Resolve(context.Background(), "admin@demo.local")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if role != model.RoleAdmin {
		t.Fatalf("expected admin, got %q", role)
	}
}

func TestResolveUnknownUserIsRoleless(t *testing.T) {
	resolver := NewResolver(&fakeLookup{users: map[string]model.User{}}, nil, 0)

	role, err := resolver.Resolve(context.Background(), "ghost@demo.local")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if role != "" {
		t.Fatalf("expected empty role, got %q", role)
	}
}

func TestResolveEmptyEmailSkipsLookup(t *testing.T) {
	lookup := &fakeLookup{users: map[string]model.User{}}
	resolver := NewResolver(lookup, nil, 0)

	role, err := resolver.Resolve(context.Background(), "")
	if err != nil || role != "" {
		t.Fatalf("expected empty role, got %q err=%v", role, err)
	}
	if lookup.calls != 0 {
		t.Fatalf("expected no storage lookup, got %d", lookup.calls)
	}
}
