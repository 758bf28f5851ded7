package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// LocalUser owns chats created while authentication is disabled.
const LocalUser = "local"

type Identity struct {
	UserID string
	Roles  []string
}

// Anonymous is the identity assumed when no API key is required.
func Anonymous() Identity {
	return Identity{UserID: LocalUser, Roles: []string{RoleAdmin, RoleAnalyst}}
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// CanChat reports whether the identity may open chats and ask questions.
func (i Identity) CanChat() bool {
	return i.HasRole(RoleAnalyst) || i.HasRole(RoleAdmin)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:user:role|role" entries separated by
// commas.
func NewStaticAPIKeyValidator(entries string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	entries = strings.TrimSpace(entries)
	if entries == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(entries, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:user:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		user := strings.TrimSpace(parts[1])
		if key == "" || user == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/user", entry)
		}
		var roles []string
		for _, role := range strings.Split(parts[2], "|") {
			role = strings.TrimSpace(role)
			switch role {
			case "":
				continue
			case RoleAnalyst, RoleAdmin:
				roles = append(roles, role)
			default:
				return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		sort.Strings(roles)
		if _, dup := validator.keys[key]; dup {
			return nil, fmt.Errorf("duplicate static key for user %q", user)
		}
		validator.keys[key] = Identity{UserID: user, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}
