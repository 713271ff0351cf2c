package model

import "time"

// ErrorResponse is the error body produced by the 10xCards backend.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type PageInfo struct {
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type PageParams struct {
	Page *int
	Size *int
	Sort string
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type SessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	IsLoading     bool          `json:"isLoading"`
	User          *UserIdentity `json:"user,omitempty"`
	AccessExpiry  *time.Time    `json:"accessExpiresAt,omitempty"`
}

type GatewayError struct {
	Error string `json:"error"`
}
