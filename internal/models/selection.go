package models

import "time"

// StagedFile describes a file placed in the selection through the web surface.
type StagedFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     Digest    `json:"sha256,omitempty"`
	SelectedAt time.Time `json:"selectedAt"`
}
