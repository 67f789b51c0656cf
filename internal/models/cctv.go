package models

import (
	"time"

	"github.com/google/uuid"
)

type CCTV struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	Location  string    `json:"location" db:"location"`
	Port      *int      `json:"port,omitempty" db:"port"`
	Username  string    `json:"username,omitempty" db:"username"`
	Password  string    `json:"-" db:"password"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
