package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ablair264/SplitLease-Backend/internal/models"
)

func vehicle(manufacturer, model, variant string) models.Vehicle {
	return models.Vehicle{Manufacturer: manufacturer, Model: model, Variant: variant}
}

func TestExpandAllTermsSingleMileage(t *testing.T) {
	cfg := models.Configuration{
		Term:    models.SelectAll(),
		Mileage: models.SelectValue(10000),
	}
	reqs := Expand([]models.Vehicle{vehicle("BMW", "3 Series", "320d M Sport")}, cfg)

	require.Len(t, reqs, 4)
	for i, term := range []int{24, 36, 48, 60} {
		assert.Equal(t, term, reqs[i].TermMonths)
		assert.Equal(t, 10000, reqs[i].AnnualMileage)
	}
}

func TestExpandSingleTermAllMileages(t *testing.T) {
	cfg := models.Configuration{
		Term:    models.SelectValue(36),
		Mileage: models.SelectAll(),
	}
	reqs := Expand([]models.Vehicle{vehicle("Audi", "A4", "35 TFSI Sport")}, cfg)

	require.Len(t, reqs, 8)
	for i, mileage := range models.DefaultMileages {
		assert.Equal(t, 36, reqs[i].TermMonths)
		assert.Equal(t, mileage, reqs[i].AnnualMileage)
	}
}

func TestExpandFullMatrixOrder(t *testing.T) {
	vehicles := []models.Vehicle{
		vehicle("BMW", "3 Series", "320d M Sport"),
		vehicle("Audi", "A4", "35 TFSI Sport"),
	}
	cfg := models.Configuration{
		Term:        models.SelectAll(),
		Mileage:     models.SelectAll(),
		Maintenance: true,
		Deposit:     1500,
	}
	reqs := Expand(vehicles, cfg)

	require.Len(t, reqs, 2*4*8)

	// Vehicles in job order, terms outer, mileages inner.
	assert.Equal(t, "BMW", reqs[0].Vehicle.Manufacturer)
	assert.Equal(t, "BMW", reqs[31].Vehicle.Manufacturer)
	assert.Equal(t, "Audi", reqs[32].Vehicle.Manufacturer)
	assert.Equal(t, 24, reqs[0].TermMonths)
	assert.Equal(t, 5000, reqs[0].AnnualMileage)
	assert.Equal(t, 24, reqs[7].TermMonths)
	assert.Equal(t, 30000, reqs[7].AnnualMileage)
	assert.Equal(t, 36, reqs[8].TermMonths)
	assert.Equal(t, 5000, reqs[8].AnnualMileage)

	for _, r := range reqs {
		assert.True(t, r.Maintenance)
		assert.Equal(t, 1500.0, r.Deposit)
	}
}

func TestExpandDeterministic(t *testing.T) {
	vehicles := []models.Vehicle{
		vehicle("Tesla", "Model 3", "Long Range"),
		vehicle("Kia", "Niro", "2 EV"),
	}
	cfg := models.Configuration{Term: models.SelectAll(), Mileage: models.SelectAll()}

	first := Expand(vehicles, cfg)
	second := Expand(vehicles, cfg)
	require.Equal(t, first, second)
}

func TestExpandVehicleMatchesConfiguredSize(t *testing.T) {
	cfg := models.Configuration{Term: models.SelectAll(), Mileage: models.SelectAll()}
	reqs := ExpandVehicle(vehicle("VW", "Golf", "1.5 TSI Life"), cfg)
	require.Len(t, reqs, cfg.RequestsPerVehicle())
}

func TestExpandSingleCell(t *testing.T) {
	cfg := models.Configuration{
		Term:    models.SelectValue(48),
		Mileage: models.SelectValue(8000),
	}
	reqs := Expand([]models.Vehicle{vehicle("Skoda", "Octavia", "SE L")}, cfg)

	require.Len(t, reqs, 1)
	assert.Equal(t, 48, reqs[0].TermMonths)
	assert.Equal(t, 8000, reqs[0].AnnualMileage)
}

func TestExpandNoVehicles(t *testing.T) {
	cfg := models.Configuration{Term: models.SelectAll(), Mileage: models.SelectAll()}
	assert.Empty(t, Expand(nil, cfg))
}
