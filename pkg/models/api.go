// pkg/models/api.go
package models

import "github.com/google/uuid"

// Validation error response (Laravel-style field map)
type ValidationErrorResponse struct {
	Message string              `json:"message" example:"Validation failed"`
	Errors  map[string][]string `json:"errors"`
}

// Generic error response (403/404/409/500)
type ErrorResponse struct {
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"Forbidden"`
	Code    string `json:"code,omitempty" example:"FORBIDDEN"`
}

// Actor is the authenticated principal a lifecycle operation runs as.
// Role is authoritative and immutable for the duration of a request.
type Actor struct {
	ID      uuid.UUID
	Role    Role
	IsStaff bool
}
