package organizations

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository handles organization persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to organization operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads an organization by its id.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// Upsert creates the organization or refreshes its name. An empty name never
// overwrites a stored one; a brand-new organization without a name is named
// after its id.
func (r *Repository) Upsert(ctx context.Context, id, name string) (*models.Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("organization id is required")
	}
	name = strings.TrimSpace(name)

	now := db.NowUTC()
	org := &models.Organization{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	if org.Name == "" {
		org.Name = id
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"updated_at": now}),
	}
	if name != "" {
		onConflict.DoUpdates = clause.Assignments(map[string]any{"name": name, "updated_at": now})
	}

	if err := r.db.WithContext(ctx).Clauses(onConflict).Create(org).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// ListIDs returns every organization id, ordered.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Organization{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}
