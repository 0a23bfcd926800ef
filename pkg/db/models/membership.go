package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Membership is one person's seat in one organization. The same email may hold
// memberships in many organizations; (email, organization_id) and
// (external_id, organization_id) are each unique.
type Membership struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID     string                 `gorm:"column:external_id;not null"`
	Email          string                 `gorm:"column:email;not null"`
	OrganizationID string                 `gorm:"column:organization_id;not null"`
	Role           enums.MemberRole       `gorm:"column:role;not null"`
	Status         enums.MembershipStatus `gorm:"column:status;not null"`
	IsActive       bool                   `gorm:"column:is_active;not null"`
	FirstName      string                 `gorm:"column:first_name;not null"`
	LastName       string                 `gorm:"column:last_name;not null"`
	InvitedBy      *uuid.UUID             `gorm:"column:invited_by;type:uuid"`
	LastLoginAt    *time.Time             `gorm:"column:last_login_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Membership) TableName() string { return "memberships" }

// BeforeCreate assigns the primary key client side so inserts behave the same
// on Postgres and SQLite.
func (m *Membership) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// SetStatus updates status and keeps the legacy is_active flag in sync.
func (m *Membership) SetStatus(status enums.MembershipStatus) {
	m.Status = status
	m.IsActive = status == enums.MembershipStatusActive
}

// DisplayName joins the first and last name.
func (m Membership) DisplayName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}
