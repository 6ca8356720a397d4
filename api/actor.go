package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/warp/leave-engine/leave"
)

// HeaderEmployeeID carries the acting employee's id. Authentication happens
// upstream (gateway or SSO proxy); this service only resolves the id.
const HeaderEmployeeID = "X-Employee-ID"

type actorKey struct{}

// WithActor returns a copy of ctx carrying the acting employee.
func WithActor(ctx context.Context, e leave.Employee) context.Context {
	return context.WithValue(ctx, actorKey{}, e)
}

// ActorFrom returns the employee stored by ActorMiddleware.
func ActorFrom(ctx context.Context) (leave.Employee, bool) {
	e, ok := ctx.Value(actorKey{}).(leave.Employee)
	return e, ok
}

// ActorMiddleware resolves X-Employee-ID through the directory and stores
// the employee in the request context. Missing or unknown ids get 401.
func ActorMiddleware(dir leave.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderEmployeeID))
			if id == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "missing " + HeaderEmployeeID + " header",
					Code:  "unauthenticated",
				})
				return
			}

			actor, err := dir.Employee(r.Context(), leave.EmployeeID(id))
			if errors.Is(err, leave.ErrEmployeeNotFound) {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: "unknown employee",
					Code:  "unauthenticated",
				})
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to resolve employee", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
