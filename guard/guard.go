package guard

import (
	"context"
	"net/http"

	"github.com/MrEthical07/cmsync/session"
)

// Navigation targets.
const (
	PathAuth      = "/auth"
	PathDashboard = "/dashboard"
)

// Decision is what a guard tells the caller to do.
type Decision int

const (
	// Wait means the session is still loading; render nothing yet.
	Wait Decision = iota
	Allow
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "wait"
	}
}

// Outcome is a guard decision. To is set for Redirect.
type Outcome struct {
	Decision Decision
	To       string
}

func allow() Outcome             { return Outcome{Decision: Allow} }
func redirect(to string) Outcome { return Outcome{Decision: Redirect, To: to} }

// View is the session state a guard reads. *session.Store implements it.
type View interface {
	IsLoading() bool
	CurrentUser() (session.User, bool)
}

// Guard evaluates a View.
type Guard func(View) Outcome

// Protected allows any signed-in user.
func Protected(v View) Outcome {
	if v.IsLoading() {
		return Outcome{Decision: Wait}
	}
	if _, ok := v.CurrentUser(); !ok {
		return redirect(PathAuth)
	}
	return allow()
}

// RequireRole allows signed-in users holding role. Admins pass every role
// check.
func RequireRole(role session.Role) Guard {
	return func(v View) Outcome {
		out := Protected(v)
		if out.Decision != Allow {
			return out
		}
		u, _ := v.CurrentUser()
		if u.Role != role && u.Role != session.RoleAdmin {
			return redirect(PathDashboard)
		}
		return out
	}
}

// Root redirects the entry path by authentication state.
func Root(v View) Outcome {
	if v.IsLoading() {
		return Outcome{Decision: Wait}
	}
	if _, ok := v.CurrentUser(); ok {
		return redirect(PathDashboard)
	}
	return redirect(PathAuth)
}

// Readier is a View that can signal the end of bootstrap.
type Readier interface {
	View
	Ready() <-chan struct{}
}

// Await waits until v is ready and evaluates g. It never returns Wait
// unless ctx ends first, in which case the error is ctx.Err().
func Await(ctx context.Context, v Readier, g Guard) (Outcome, error) {
	select {
	case <-v.Ready():
		return g(v), nil
	case <-ctx.Done():
		return Outcome{Decision: Wait}, ctx.Err()
	}
}

// Middleware applies g to every request. Wait answers 503 with Retry-After,
// Redirect answers 303 to the target.
func Middleware(v View, g Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			out := g(v)
			switch out.Decision {
			case Allow:
				next.ServeHTTP(w, r)
			case Redirect:
				http.Redirect(w, r, out.To, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session loading", http.StatusServiceUnavailable)
			}
		})
	}
}
