package models

import "time"

// Symbol is a member of the scan universe.
type Symbol struct {
	Ticker    string    `json:"ticker"`
	IsActive  bool      `json:"is_active"`
	Exchange  string    `json:"exchange"`
	AssetType string    `json:"asset_type"`
	UpdatedAt time.Time `json:"updated_at"`
}
