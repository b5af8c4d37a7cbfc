package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultFixture []byte

// Fixture is the on-disk registry format.
type Fixture struct {
	Persons  []entities.Person  `yaml:"persons"`
	Vehicles []entities.Vehicle `yaml:"vehicles"`
}

// ParseFixture decodes a YAML registry and rejects entries without an ID.
func ParseFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode catalog fixture: %w", err)
	}
	for i, p := range f.Persons {
		if p.EmployeeID == "" {
			return nil, fmt.Errorf("persons[%d]: employee_id is required", i)
		}
	}
	for i, v := range f.Vehicles {
		if v.PlateNumber == "" {
			return nil, fmt.Errorf("vehicles[%d]: plate_number is required", i)
		}
	}
	return &f, nil
}

// Seed upserts the fixture read from r into repo.
func Seed(ctx context.Context, repo repository.CatalogRepository, r io.Reader) (*Fixture, error) {
	f, err := ParseFixture(r)
	if err != nil {
		return nil, err
	}
	if err := repo.UpsertPersons(ctx, f.Persons); err != nil {
		return nil, err
	}
	if err := repo.UpsertVehicles(ctx, f.Vehicles); err != nil {
		return nil, err
	}
	return f, nil
}

// SeedFromFile seeds from path, or from the embedded registry when path is empty.
func SeedFromFile(ctx context.Context, repo repository.CatalogRepository, path string) (*Fixture, error) {
	if path == "" {
		return Seed(ctx, repo, bytes.NewReader(defaultFixture))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog seed %s: %w", path, err)
	}
	defer file.Close()
	return Seed(ctx, repo, file)
}
