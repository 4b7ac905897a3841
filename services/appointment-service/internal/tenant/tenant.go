// Package tenant resolves the tenant identity of a request and threads it
// through the call chain as an explicit value. There is no ambient tenant
// state anywhere in this service: every downstream function takes the tenant
// id as a parameter, and the storage layer re-binds it per transaction.
package tenant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/garageboard/garageboard/libs/httpx"
)

// HeaderTenantID is stamped by the gateway from verified token claims.
const HeaderTenantID = "X-Tenant-Id"

var ErrMissing = errors.New("tenant context missing")

type ctxKey struct{}

// FromRequest extracts and validates the tenant id from request headers.
// Tenant ids are UUIDs; anything else fails closed.
func FromRequest(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	if raw == "" {
		return "", ErrMissing
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrMissing
	}
	return id.String(), nil
}

// FromContext returns the tenant id stored by Require.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok && v != ""
}

// Require rejects any request without a resolvable tenant id and makes the
// id available on the request context for handlers.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := FromRequest(r)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "tenant_context_missing", "missing or malformed X-Tenant-Id header")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
