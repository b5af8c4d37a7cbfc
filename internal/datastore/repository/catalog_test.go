package repository

import (
	"testing"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepository_UpsertAndGet(t *testing.T) {
	repo := NewCatalogRepository(setupTestDB(t))
	ctx := t.Context()

	require.NoError(t, repo.UpsertPersons(ctx, []entities.Person{
		{EmployeeID: "E1001", Name: "张伟", Department: "安保部"},
		{EmployeeID: "E1002", Name: "李娜", Department: "运维部"},
	}))
	require.NoError(t, repo.UpsertVehicles(ctx, []entities.Vehicle{
		{PlateNumber: "沪A12345", VehicleType: "货车", Color: "白色"},
	}))

	p, err := repo.GetPerson(ctx, "E1001")
	require.NoError(t, err)
	assert.Equal(t, "张伟", p.Name)

	v, err := repo.GetVehicle(ctx, "沪A12345")
	require.NoError(t, err)
	assert.Equal(t, "货车", v.VehicleType)

	_, err = repo.GetPerson(ctx, "E9999")
	assert.ErrorIs(t, err, ErrCatalogEntryNotFound)
	_, err = repo.GetVehicle(ctx, "京B00000")
	assert.ErrorIs(t, err, ErrCatalogEntryNotFound)
}

func TestCatalogRepository_UpsertOverwrites(t *testing.T) {
	repo := NewCatalogRepository(setupTestDB(t))
	ctx := t.Context()

	require.NoError(t, repo.UpsertPersons(ctx, []entities.Person{{EmployeeID: "E1", Name: "旧名"}}))
	require.NoError(t, repo.UpsertPersons(ctx, []entities.Person{{EmployeeID: "E1", Name: "新名", Position: "主管"}}))

	persons, err := repo.ListPersons(ctx)
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, "新名", persons[0].Name)
	assert.Equal(t, "主管", persons[0].Position)

	vehicles, err := repo.ListVehicles(ctx)
	require.NoError(t, err)
	assert.Empty(t, vehicles)
	assert.NoError(t, repo.UpsertVehicles(ctx, nil))
}
