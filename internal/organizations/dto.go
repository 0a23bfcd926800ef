package organizations

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// OrganizationDTO is the API shape of an organization.
type OrganizationDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToDTO converts a model to the external DTO.
func ToDTO(m *models.Organization) *OrganizationDTO {
	if m == nil {
		return nil
	}
	return &OrganizationDTO{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}
