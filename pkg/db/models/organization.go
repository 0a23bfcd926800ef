package models

import "time"

// Organization is a tenant. Its id is the slug issued by the identity provider
// or generated locally, so it is a string rather than a uuid.
type Organization struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Organization) TableName() string { return "organizations" }
