package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/console"
	"github.com/openrag/opsconsole/internal/listing"
)

// WorkspaceProvider returns the signed-in operator's workspace.
type WorkspaceProvider interface {
	Workspace(ctx context.Context) (*console.Workspace, error)
}

// workspace resolves the caller's workspace or writes the error reply.
func workspace(w http.ResponseWriter, r *http.Request, shell WorkspaceProvider) (*console.Workspace, bool) {
	ws, err := shell.Workspace(r.Context())
	if err != nil {
		response.Error(w, r, err, "no workspace for this session")
		return nil, false
	}
	return ws, true
}

// navigation reads page, size, status and q. Only parameters present in the
// query are applied; page is zero-based.
func navigation(r *http.Request, withStatus bool) (listing.Navigation, bool) {
	q := r.URL.Query()
	var nav listing.Navigation

	if q.Has("page") {
		n, err := strconv.Atoi(q.Get("page"))
		if err != nil {
			return nav, false
		}
		nav.PageIndex = &n
	}
	if q.Has("size") {
		n, err := strconv.Atoi(q.Get("size"))
		if err != nil {
			return nav, false
		}
		nav.PageSize = &n
	}
	if withStatus && q.Has("status") {
		s := q.Get("status")
		nav.Status = &s
	}
	if q.Has("q") {
		s := q.Get("q")
		nav.Search = &s
	}
	return nav, true
}

// confirmed reports whether the request carries confirm=true.
func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}
