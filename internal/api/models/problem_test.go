package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/api/models"
)

func TestForStatus(t *testing.T) {
	tests := []struct {
		status int
		typ    string
		title  string
	}{
		{http.StatusBadRequest, models.ProblemTypeValidation, "Validation error"},
		{http.StatusForbidden, models.ProblemTypeForbidden, "Forbidden"},
		{http.StatusConflict, models.ProblemTypeConflict, "Conflict"},
		{http.StatusBadGateway, models.ProblemTypeBadGateway, "Bad gateway"},
		{http.StatusTeapot, models.ProblemTypeUpstream, "I'm a teapot"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			p := models.ForStatus(tt.status, "req_1", "detail")
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.title, p.Title)
			assert.Equal(t, "detail", p.Detail)
		})
	}
}

func TestProblem_Write(t *testing.T) {
	p := models.NewUnprocessable("req_abc", "Password must be at least 4 characters", []models.FieldError{
		{Field: "password", Message: "too short", Code: "min_length"},
	}).WithInstance("/v1/users/u1/password")

	rec := httptest.NewRecorder()
	p.Write(rec)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_abc", rec.Header().Get("X-Request-Id"))

	var body models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Password must be at least 4 characters", body.Detail)
	assert.Equal(t, "/v1/users/u1/password", body.Instance)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "password", body.Errors[0].Field)
}
