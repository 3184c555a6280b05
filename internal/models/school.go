package models

import "time"

// School is reference data consumed when enriching vacancy listings.
type School struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	City          string    `db:"city" json:"city"`
	Address       string    `db:"address" json:"address"`
	ContactNumber string    `db:"contact_number" json:"contactNumber"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// SchoolRequest is the create/update payload.
type SchoolRequest struct {
	Name          string `json:"name" validate:"required,min=2,excludes=|"`
	City          string `json:"city" validate:"required"`
	Address       string `json:"address"`
	ContactNumber string `json:"contactNumber" validate:"omitempty,max=32"`
}
