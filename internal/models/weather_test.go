package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeatherRecordNaturalKey(t *testing.T) {
	rec := &WeatherRecord{
		StationID: "USC00110072",
		Date:      time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "USC00110072/19850101", rec.NaturalKey())
}

func TestStationYearStatsNaturalKey(t *testing.T) {
	stats := &StationYearStats{StationID: "USC00110072", Year: 1985}
	assert.Equal(t, "USC00110072/1985", stats.NaturalKey())
}

func TestCropYieldRecordNaturalKey(t *testing.T) {
	rec := &CropYieldRecord{Year: 1993}
	assert.Equal(t, "1993", rec.NaturalKey())
}

func TestStamp(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &WeatherRecord{StationID: "S1"}
	rec.Stamp("ingest_weather_records", now)

	assert.Equal(t, "ingest_weather_records", rec.CreateBy)
	assert.Equal(t, now, rec.CreateTimestamp)
	assert.Equal(t, "ingest_weather_records", rec.UpdateBy)
	assert.Equal(t, now, rec.UpdateTimestamp)
}
