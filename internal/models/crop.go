package models

import "strconv"

// CropYieldRecord stores the harvested total for one calendar year.
// Year is the natural key; one row per year across all stations.
type CropYieldRecord struct {
	ID         int64 `json:"id" db:"id"`
	Year       int   `json:"year" db:"year"`
	TotalYield int64 `json:"total_yield" db:"total_yield"`
	RowMeta
}

// NaturalKey identifies a crop record by its unique year.
func (c *CropYieldRecord) NaturalKey() string {
	return strconv.Itoa(c.Year)
}
