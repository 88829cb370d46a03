package dtos

import (
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/models"
)

type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

type ScanRequest struct {
	Days      int  `json:"days" binding:"omitempty,min=1,max=365"`
	Reprocess bool `json:"reprocess"`
}

// ListApplicationsQuery is bound from the query string of the list endpoint.
type ListApplicationsQuery struct {
	Company  string `form:"company"`
	Status   string `form:"status"`
	Platform string `form:"platform"`
	Days     int    `form:"days" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type UserResponse struct {
	ID          uint       `json:"id"`
	Email       string     `json:"email"`
	Connected   bool       `json:"connected"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
	LastScanAt  *time.Time `json:"last_scan_at,omitempty"`
}

func NewUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Connected:   u.Connected(),
		TokenExpiry: u.TokenExpiry,
		LastScanAt:  u.LastScanAt,
	}
}
