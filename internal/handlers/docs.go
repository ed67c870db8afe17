package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the read API.
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	stationParam := map[string]interface{}{
		"name":        "station-id",
		"in":          "query",
		"description": "Substring match on the weather station identifier",
		"required":    false,
		"schema":      map[string]string{"type": "string"},
	}
	pageParam := map[string]interface{}{
		"name":        "page",
		"in":          "query",
		"description": "Page number (default: 1)",
		"required":    false,
		"schema":      map[string]interface{}{"type": "integer", "default": 1},
	}
	limitParam := map[string]interface{}{
		"name":        "limit",
		"in":          "query",
		"description": "Records per page (default: 100, max: 1000)",
		"required":    false,
		"schema":      map[string]interface{}{"type": "integer", "default": 100},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Weather Crop Platform API",
			"description": "Read access to ingested weather observations, yearly per-station statistics and crop yield data",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/weather": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List weather observations",
					"description": "Paginated daily observations; -9999 source values appear as null",
					"parameters": []map[string]interface{}{
						stationParam,
						{
							"name":        "date",
							"in":          "query",
							"description": "Exact observation date (YYYYMMDD)",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
						pageParam,
						limitParam,
					},
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Paginated observation rows"},
						"400": map[string]string{"description": "Unparseable date filter"},
					},
				},
			},
			"/api/weather/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List yearly per-station statistics",
					"description": "Derived aggregates: average max/min temperature and total precipitation per station and year",
					"parameters": []map[string]interface{}{
						stationParam,
						{
							"name":        "year",
							"in":          "query",
							"description": "Exact year",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
						pageParam,
						limitParam,
					},
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Paginated statistics rows"},
						"400": map[string]string{"description": "Non-integer year filter"},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Service health check",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Service and store healthy"},
						"503": map[string]string{"description": "Store unreachable"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
