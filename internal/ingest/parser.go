package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"weather-crop-platform/internal/models"
)

// MissingValue is the sentinel the source files use for "no measurement".
// Fields carrying it are stored as NULL, never as the literal number.
const MissingValue = -9999

// ParseError describes a malformed line. A single ParseError aborts the
// whole file's ingestion; there is no skip-and-continue.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// StationIDFromPath derives the station identifier from a weather file's
// name, stripped of directory and extension. The file content never names
// the station.
func StationIDFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ParseWeatherFile reads one weather data file into an ordered slice of
// records, all sharing the station identity derived from the filename.
// Each line is four tab-separated integer fields:
//
//	YYYYMMDD<TAB>max_temp<TAB>min_temp<TAB>precipitation
//
// Audit metadata is left for the caller to stamp.
func ParseWeatherFile(path string) ([]*models.WeatherRecord, error) {
	stationID := StationIDFromPath(path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weather file: %w", err)
	}
	defer file.Close()

	var records []*models.WeatherRecord
	lineNo := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++

		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 4 {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("expected 4 tab-separated fields, got %d", len(fields))}
		}

		date, err := time.Parse(models.DateLayout, strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("invalid date %q, expected YYYYMMDD", fields[0])}
		}

		maxTemp, err := parseMetric(fields[1])
		if err != nil {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("invalid max_temp %q", fields[1])}
		}
		minTemp, err := parseMetric(fields[2])
		if err != nil {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("invalid min_temp %q", fields[2])}
		}
		precip, err := parseMetric(fields[3])
		if err != nil {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("invalid precipitation %q", fields[3])}
		}

		records = append(records, &models.WeatherRecord{
			StationID:     stationID,
			Date:          date,
			MaxTemp:       maxTemp,
			MinTemp:       minTemp,
			Precipitation: precip,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading weather file: %w", err)
	}

	return records, nil
}

// ParseCropYieldFile reads one crop yield file into an ordered slice of
// records. Each line is two tab-separated integers: year and total yield.
func ParseCropYieldFile(path string) ([]*models.CropYieldRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open crop yield file: %w", err)
	}
	defer file.Close()

	var records []*models.CropYieldRecord
	lineNo := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++

		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 2 {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("expected 2 tab-separated fields, got %d", len(fields))}
		}

		year, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("invalid year %q", fields[0])}
		}

		totalYield, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("invalid total_yield %q", fields[1])}
		}
		if totalYield < 0 {
			return nil, &ParseError{File: path, Line: lineNo,
				Msg: fmt.Sprintf("total_yield must be non-negative, got %d", totalYield)}
		}

		records = append(records, &models.CropYieldRecord{
			Year:       year,
			TotalYield: totalYield,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading crop yield file: %w", err)
	}

	return records, nil
}

// parseMetric converts one integer metric field, mapping the missing-value
// sentinel to nil.
func parseMetric(field string) (*float64, error) {
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return nil, err
	}
	if n == MissingValue {
		return nil, nil
	}
	v := float64(n)
	return &v, nil
}
