package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository stores the person and vehicle registries.
type CatalogRepository interface {
	GetPerson(ctx context.Context, employeeID string) (*entities.Person, error)
	GetVehicle(ctx context.Context, plateNumber string) (*entities.Vehicle, error)
	ListPersons(ctx context.Context) ([]entities.Person, error)
	ListVehicles(ctx context.Context) ([]entities.Vehicle, error)
	UpsertPersons(ctx context.Context, persons []entities.Person) error
	UpsertVehicles(ctx context.Context, vehicles []entities.Vehicle) error
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// GetPerson returns ErrCatalogEntryNotFound for unknown employee IDs.
func (r *catalogRepository) GetPerson(ctx context.Context, employeeID string) (*entities.Person, error) {
	var p entities.Person
	if err := r.db.WithContext(ctx).Where("employee_id = ?", employeeID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCatalogEntryNotFound
		}
		return nil, fmt.Errorf("failed to get person %s: %w", employeeID, err)
	}
	return &p, nil
}

// GetVehicle returns ErrCatalogEntryNotFound for unknown plates.
func (r *catalogRepository) GetVehicle(ctx context.Context, plateNumber string) (*entities.Vehicle, error) {
	var v entities.Vehicle
	if err := r.db.WithContext(ctx).Where("plate_number = ?", plateNumber).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCatalogEntryNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle %s: %w", plateNumber, err)
	}
	return &v, nil
}

func (r *catalogRepository) ListPersons(ctx context.Context) ([]entities.Person, error) {
	var out []entities.Person
	if err := r.db.WithContext(ctx).Order("employee_id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	return out, nil
}

func (r *catalogRepository) ListVehicles(ctx context.Context) ([]entities.Vehicle, error) {
	var out []entities.Vehicle
	if err := r.db.WithContext(ctx).Order("plate_number ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return out, nil
}

// UpsertPersons inserts persons, overwriting existing rows with the same ID.
func (r *catalogRepository) UpsertPersons(ctx context.Context, persons []entities.Person) error {
	if len(persons) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_id"}},
			UpdateAll: true,
		}).
		Create(&persons).Error
	if err != nil {
		return fmt.Errorf("failed to upsert persons: %w", err)
	}
	return nil
}

// UpsertVehicles inserts vehicles, overwriting existing rows with the same plate.
func (r *catalogRepository) UpsertVehicles(ctx context.Context, vehicles []entities.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plate_number"}},
			UpdateAll: true,
		}).
		Create(&vehicles).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vehicles: %w", err)
	}
	return nil
}
