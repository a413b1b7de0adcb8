package handler

import (
	"net/http"

	"github.com/openrag/opsconsole/internal/api/middleware"
	"github.com/openrag/opsconsole/internal/api/models"
	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/session"
)

// Me handles GET /v1/me: the principal the bearer token resolved to.
func Me(w http.ResponseWriter, r *http.Request) {
	sess, err := session.Require(r.Context())
	if err != nil {
		response.Error(w, r, err, "")
		return
	}
	response.JSON(w, r, http.StatusOK, models.PrincipalResponse{
		ID:       sess.Principal.ID,
		Username: sess.Principal.Username,
		Role:     string(sess.Principal.Role),
		IsAdmin:  sess.HasRole(session.RoleAdmin),
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, data any) {
	response.JSON(w, r, http.StatusOK, data)
}

func badGateway(r *http.Request, detail string) *models.Problem {
	return models.NewBadGateway(middleware.GetRequestID(r.Context()), detail)
}
