package models

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for observation dates in both the flat
// input files and the read API's date filter.
const DateLayout = "20060102"

// RowMeta carries the audit columns shared by every table: which actor
// created or last touched a row, and when.
type RowMeta struct {
	CreateBy        string    `json:"create_by" db:"create_by"`
	CreateTimestamp time.Time `json:"create_timestamp" db:"create_timestamp"`
	UpdateBy        string    `json:"update_by" db:"update_by"`
	UpdateTimestamp time.Time `json:"update_timestamp" db:"update_timestamp"`
}

// Stamp fills the audit columns for a freshly built row.
func (m *RowMeta) Stamp(actor string, now time.Time) {
	m.CreateBy = actor
	m.CreateTimestamp = now
	m.UpdateBy = actor
	m.UpdateTimestamp = now
}

// WeatherStation represents a real-world weather monitoring station.
// The station identifier doubles as the display name; stations are created
// implicitly on first sighting during ingestion and never deleted.
type WeatherStation struct {
	StationID   string `json:"station_id" db:"station_id"`
	StationName string `json:"station_name" db:"station_name"`
	RowMeta
}

// WeatherRecord is a single daily observation for one station.
// Metric fields are pointers: nil means the source file carried the -9999
// sentinel for that field. Values are stored exactly as they appear in the
// source files, with no unit conversion.
type WeatherRecord struct {
	ID            int64     `json:"id" db:"id"`
	StationID     string    `json:"station_id" db:"station_id"`
	Date          time.Time `json:"date" db:"date"`
	MaxTemp       *float64  `json:"max_temp" db:"max_temp"`
	MinTemp       *float64  `json:"min_temp" db:"min_temp"`
	Precipitation *float64  `json:"precipitation" db:"precipitation"`
	RowMeta
}

// NaturalKey identifies a record by its unique (station, date) pair.
func (r *WeatherRecord) NaturalKey() string {
	return r.StationID + "/" + r.Date.Format(DateLayout)
}

// StationYearStats holds the derived yearly aggregates for one station.
// Rows are recomputed wholesale from WeatherRecord; an aggregate is nil when
// no record in the group carried the corresponding field.
type StationYearStats struct {
	ID                 int64    `json:"id" db:"id"`
	StationID          string   `json:"station_id" db:"station_id"`
	Year               int      `json:"year" db:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp" db:"avg_max_temp"`
	AvgMinTemp         *float64 `json:"avg_min_temp" db:"avg_min_temp"`
	TotalPrecipitation *float64 `json:"total_precipitation" db:"total_precipitation"`
	RowMeta
}

// NaturalKey identifies a stats row by its unique (station, year) pair.
func (s *StationYearStats) NaturalKey() string {
	return fmt.Sprintf("%s/%d", s.StationID, s.Year)
}
