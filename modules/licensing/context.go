package licensing

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type userIDKey struct{}

// WithUserID stores the authenticated user id. The authentication layer in
// front of the router calls it.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// UserResolver identifies the requesting user.
type UserResolver func(r *http.Request) (uuid.UUID, bool)

// ContextUserResolver reads the id stored with WithUserID. It is the default.
func ContextUserResolver(r *http.Request) (uuid.UUID, bool) {
	return UserIDFromContext(r.Context())
}

// HeaderUserResolver trusts a user id header set by an authenticating proxy.
// Only use it when clients cannot reach the service directly.
func HeaderUserResolver(header string) UserResolver {
	return func(r *http.Request) (uuid.UUID, bool) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(header)))
		if err != nil || id == uuid.Nil {
			return uuid.Nil, false
		}
		return id, true
	}
}
