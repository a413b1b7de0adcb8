package models

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// ChangePasswordRequest is the body of PATCH /v1/users/{id}/password.
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

// PrincipalResponse is the body of GET /v1/me.
type PrincipalResponse struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"isAdmin"`
}
