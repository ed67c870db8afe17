package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-crop-platform/internal/models"
	"weather-crop-platform/internal/repository"
	"weather-crop-platform/internal/services"
	"weather-crop-platform/pkg/logging"
	"weather-crop-platform/pkg/metrics"
)

// fakeReader captures the filter each read receives and returns canned rows.
type fakeReader struct {
	observations []*models.WeatherRecord
	stats        []*models.StationYearStats
	total        int
	err          error
	healthErr    error

	gotObsFilter   *repository.ObservationFilter
	gotStatsFilter *repository.StatisticsFilter
}

func (f *fakeReader) GetObservations(_ context.Context, filter repository.ObservationFilter) ([]*models.WeatherRecord, int, error) {
	f.gotObsFilter = &filter
	return f.observations, f.total, f.err
}

func (f *fakeReader) GetStatistics(_ context.Context, filter repository.StatisticsFilter) ([]*models.StationYearStats, int, error) {
	f.gotStatsFilter = &filter
	return f.stats, f.total, f.err
}

func (f *fakeReader) HealthCheck(context.Context) error { return f.healthErr }

func newTestHandler(reader *fakeReader) *WeatherHandler {
	logger := logging.NewStructuredLogger("test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	return NewWeatherHandler(services.NewWeatherService(reader), logger, collector)
}

func doRequest(handler *WeatherHandler, url string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetObservations(t *testing.T) {
	maxTemp := 289.0
	reader := &fakeReader{
		observations: []*models.WeatherRecord{{
			StationID: "USC00110072",
			Date:      time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC),
			MaxTemp:   &maxTemp,
		}},
		total: 1,
	}

	rec := doRequest(newTestHandler(reader), "/api/weather")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 1, resp.TotalPages)

	require.NotNil(t, reader.gotObsFilter)
	assert.Nil(t, reader.gotObsFilter.StationContains)
	assert.Nil(t, reader.gotObsFilter.Date)
	assert.Equal(t, 100, reader.gotObsFilter.Limit)
	assert.Equal(t, 0, reader.gotObsFilter.Offset)
}

func TestGetObservationsFilters(t *testing.T) {
	reader := &fakeReader{}
	rec := doRequest(newTestHandler(reader),
		"/api/weather?station-id=USC001&date=19850101&page=3&limit=25")
	require.Equal(t, http.StatusOK, rec.Code)

	filter := reader.gotObsFilter
	require.NotNil(t, filter)
	require.NotNil(t, filter.StationContains)
	assert.Equal(t, "USC001", *filter.StationContains)
	require.NotNil(t, filter.Date)
	assert.Equal(t, time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC), *filter.Date)
	assert.Equal(t, 25, filter.Limit)
	assert.Equal(t, 50, filter.Offset)
}

func TestGetObservationsBadDate(t *testing.T) {
	reader := &fakeReader{}
	rec := doRequest(newTestHandler(reader), "/api/weather?date=1985-01-01")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid date, expected YYYYMMDD", resp.Message)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, reader.gotObsFilter)
}

func TestGetObservationsStoreError(t *testing.T) {
	reader := &fakeReader{err: errors.New("connection refused")}
	rec := doRequest(newTestHandler(reader), "/api/weather")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed to retrieve observations", resp.Message)
}

func TestGetObservationsPaginationBounds(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantPage  int
	}{
		{name: "defaults", query: "", wantLimit: 100, wantPage: 1},
		{name: "limit capped", query: "?limit=5000", wantLimit: 100, wantPage: 1},
		{name: "non-numeric ignored", query: "?page=x&limit=y", wantLimit: 100, wantPage: 1},
		{name: "negative ignored", query: "?page=-2&limit=-5", wantLimit: 100, wantPage: 1},
		{name: "explicit", query: "?page=2&limit=10", wantLimit: 10, wantPage: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			rec := doRequest(newTestHandler(reader), "/api/weather"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			filter := reader.gotObsFilter
			require.NotNil(t, filter)
			assert.Equal(t, tt.wantLimit, filter.Limit)
			assert.Equal(t, (tt.wantPage-1)*tt.wantLimit, filter.Offset)
		})
	}
}

func TestGetStatisticsFilters(t *testing.T) {
	avg := -72.0
	reader := &fakeReader{
		stats: []*models.StationYearStats{{
			StationID:  "USC00110072",
			Year:       1985,
			AvgMaxTemp: &avg,
		}},
		total: 1,
	}

	rec := doRequest(newTestHandler(reader), "/api/weather/stats?station-id=USC&year=1985")
	require.Equal(t, http.StatusOK, rec.Code)

	filter := reader.gotStatsFilter
	require.NotNil(t, filter)
	require.NotNil(t, filter.StationContains)
	assert.Equal(t, "USC", *filter.StationContains)
	require.NotNil(t, filter.Year)
	assert.Equal(t, 1985, *filter.Year)
}

func TestGetStatisticsBadYear(t *testing.T) {
	reader := &fakeReader{}
	rec := doRequest(newTestHandler(reader), "/api/weather/stats?year=eighty-five")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid year, expected an integer", resp.Message)
	assert.Nil(t, reader.gotStatsFilter)
}

func TestGetStatisticsNullAggregates(t *testing.T) {
	avg := 15.0
	reader := &fakeReader{
		stats: []*models.StationYearStats{{
			StationID:  "S1",
			Year:       1990,
			AvgMaxTemp: &avg,
		}},
		total: 1,
	}

	rec := doRequest(newTestHandler(reader), "/api/weather/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 15.0, resp.Data[0]["avg_max_temp"])
	assert.Nil(t, resp.Data[0]["avg_min_temp"])
	assert.Nil(t, resp.Data[0]["total_precipitation"])
}

func TestTotalPages(t *testing.T) {
	reader := &fakeReader{total: 101}
	rec := doRequest(newTestHandler(reader), "/api/weather?limit=50")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 101, resp.Total)
	assert.Equal(t, 3, resp.TotalPages)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		rec := doRequest(newTestHandler(&fakeReader{}), "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		reader := &fakeReader{healthErr: errors.New("db down")}
		rec := doRequest(newTestHandler(reader), "/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp["status"])
	})
}

func TestOpenAPISpecServed(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeReader{}), "/api/docs/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/api/weather")
	assert.Contains(t, paths, "/api/weather/stats")
}
