package models

import "time"

const (
	DeviceSecure          = "secure"
	DeviceWarning         = "warning"
	DeviceVulnerable      = "vulnerable"
	DeviceUpdateAvailable = "update_available"
	DeviceOffline         = "offline"
)

const (
	AlertOpen         = "open"
	AlertResolved     = "resolved"
	AlertAutoResolved = "auto_resolved"
)

// Device is a household device as stored in the inventory.
type Device struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"device_type"`
	Status    string    `json:"status" db:"status"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Alert is a stored security alert.
type Alert struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	DeviceID    string    `json:"device_id,omitempty" db:"device_id"`
	Title       string    `json:"title" db:"title"`
	Severity    Severity  `json:"severity" db:"severity"`
	Category    string    `json:"category" db:"category"`
	Status      string    `json:"status" db:"status"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
