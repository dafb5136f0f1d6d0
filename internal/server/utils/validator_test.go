package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coords struct {
	Lat *float64 `form:"lat" validate:"omitempty,latitude"`
	Lon float64  `json:"lon" validate:"longitude"`
}

type window struct {
	From time.Time `form:"from"`
	To   time.Time `form:"to" validate:"omitempty,gtefield=From"`
}

func ptr(v float64) *float64 { return &v }

func TestValidateStruct_Coordinates(t *testing.T) {
	assert.Empty(t, ValidateStruct(coords{Lat: ptr(0), Lon: 0}))
	assert.Empty(t, ValidateStruct(coords{Lat: nil, Lon: -180}))

	errs := ValidateStruct(coords{Lat: ptr(90.5), Lon: 181})
	require.Len(t, errs, 2)
	assert.Equal(t, "lat", errs[0].Field)
	assert.Equal(t, "latitude", errs[0].Tag)
	assert.Equal(t, "lon", errs[1].Field)
	assert.Equal(t,
		"lat must be a latitude between -90 and 90 degrees; lon must be a longitude between -180 and 180 degrees",
		JoinMessages(errs))
}

func TestValidateStruct_Window(t *testing.T) {
	noon := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Empty(t, ValidateStruct(window{}))
	assert.Empty(t, ValidateStruct(window{From: noon}))
	assert.Empty(t, ValidateStruct(window{To: noon}))
	assert.Empty(t, ValidateStruct(window{From: noon, To: noon}))

	errs := ValidateStruct(window{From: noon, To: noon.Add(-time.Hour)})
	require.Len(t, errs, 1)
	assert.Equal(t, "to must not be before from", errs[0].Message)
}
