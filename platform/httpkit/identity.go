package httpkit

import (
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity is the caller behind a validated access token.
type Identity struct {
	UserID uuid.UUID
	Roles  []string
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (i Identity) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(i.Roles, r) {
			return true
		}
	}
	return false
}

// IdentityFrom reads the caller stored by AuthRequired. ok is false on
// routes that are not behind it.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	raw, ok := c.Get(ContextUserIDKey)
	if !ok {
		return Identity{}, false
	}
	uid, ok := raw.(uuid.UUID)
	if !ok || uid == uuid.Nil {
		return Identity{}, false
	}
	id := Identity{UserID: uid}
	if roles, ok := c.Get(ContextRolesKey); ok {
		id.Roles, _ = roles.([]string)
	}
	return id, true
}

// RequireIdentity is IdentityFrom that answers 401 when no caller is present.
func RequireIdentity(c *gin.Context) (Identity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		abortUnauthorized(c, "unauthorized")
	}
	return id, ok
}
