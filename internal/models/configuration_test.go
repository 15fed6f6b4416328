package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionUnmarshal(t *testing.T) {
	var s Selection
	require.NoError(t, json.Unmarshal([]byte(`"ALL"`), &s))
	assert.True(t, s.All)

	require.NoError(t, json.Unmarshal([]byte(`"all"`), &s))
	assert.True(t, s.All)

	require.NoError(t, json.Unmarshal([]byte(`36`), &s))
	assert.False(t, s.All)
	assert.Equal(t, 36, s.Value)

	assert.Error(t, json.Unmarshal([]byte(`"sometimes"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`36.5`), &s))
	assert.Error(t, json.Unmarshal([]byte(`true`), &s))
}

func TestSelectionMarshalRoundTrip(t *testing.T) {
	b, err := json.Marshal(SelectAll())
	require.NoError(t, err)
	assert.Equal(t, `"ALL"`, string(b))

	b, err = json.Marshal(SelectValue(10000))
	require.NoError(t, err)
	assert.Equal(t, `10000`, string(b))
}

func TestConfigurationJSON(t *testing.T) {
	raw := `{"term":"ALL","mileage":10000,"maintenance":true,"deposit":999.5}`
	var cfg Configuration
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.True(t, cfg.Term.All)
	assert.Equal(t, 10000, cfg.Mileage.Value)
	assert.True(t, cfg.Maintenance)
	assert.Equal(t, 999.5, cfg.Deposit)
	assert.Equal(t, []int{24, 36, 48, 60}, cfg.Terms())
	assert.Equal(t, []int{10000}, cfg.Mileages())
	assert.Equal(t, 4, cfg.RequestsPerVehicle())
}

func TestConfigurationValidate(t *testing.T) {
	valid := Configuration{Term: SelectValue(36), Mileage: SelectValue(10000)}
	require.NoError(t, valid.Validate())

	all := Configuration{Term: SelectAll(), Mileage: SelectAll()}
	require.NoError(t, all.Validate())

	badTerm := Configuration{Term: SelectValue(18), Mileage: SelectValue(10000)}
	assert.Error(t, badTerm.Validate())

	badMileage := Configuration{Term: SelectValue(36), Mileage: SelectValue(9000)}
	assert.Error(t, badMileage.Validate())

	badDeposit := Configuration{Term: SelectValue(36), Mileage: SelectValue(10000), Deposit: -1}
	assert.Error(t, badDeposit.Validate())
}

func TestTermsReturnsCopy(t *testing.T) {
	cfg := Configuration{Term: SelectAll(), Mileage: SelectAll()}
	terms := cfg.Terms()
	terms[0] = 99
	assert.Equal(t, 24, DefaultTerms[0])
}
