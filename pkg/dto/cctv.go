package dto

import "github.com/google/uuid"

type CreateCCTVRequest struct {
	Name      string `json:"name" binding:"required"`
	IPAddress string `json:"ip_address" binding:"required"`
	Location  string `json:"location" binding:"required"`
	Port      *int   `json:"port,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

type CCTVResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ip_address"`
	Location  string    `json:"location"`
	Port      *int      `json:"port,omitempty"`
	Username  string    `json:"username,omitempty"`
}
