package openapi

func envelopeSchema(dataSchema map[string]any) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{"type": "integer"},
			"err":  map[string]any{"type": "string"},
			"data": dataSchema,
		},
		"required": []string{"code"},
	}
}

func apiKeyParam() map[string]any {
	return map[string]any{
		"name":        "api_key",
		"in":          "query",
		"required":    true,
		"description": "Project API key (pk_... or sk_...)",
		"schema":      map[string]any{"type": "string"},
	}
}

// Spec returns a minimal OpenAPI 3 spec for the djangalytics HTTP API.
// It is intentionally hand-maintained to avoid codegen tooling.
func Spec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "djangalytics API",
			"version": "0.1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{
					"tags":        []string{"system"},
					"summary":     "Health check",
					"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
					"operationId": "healthz",
				},
			},
			"/api/status": map[string]any{
				"get": map[string]any{
					"tags":        []string{"system"},
					"summary":     "Get system status",
					"operationId": "getSystemStatus",
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Status",
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": envelopeSchema(map[string]any{"$ref": "#/components/schemas/SystemStatus"}),
								},
							},
						},
					},
				},
			},
			"/api/events": map[string]any{
				"post": map[string]any{
					"tags":        []string{"events"},
					"summary":     "Capture a single event",
					"operationId": "captureEvent",
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/CaptureRequest"},
							},
						},
					},
					"responses": map[string]any{
						"201": map[string]any{
							"description": "Event captured",
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": map[string]any{"$ref": "#/components/schemas/CaptureResponse"},
								},
							},
						},
						"400": map[string]any{"description": "Invalid payload"},
						"401": map[string]any{"description": "Invalid or inactive API key"},
						"403": map[string]any{"description": "Source not in project allow-list"},
						"429": map[string]any{"description": "Rate limit exceeded (Retry-After set)"},
						"503": map[string]any{"description": "Storage unavailable"},
					},
				},
			},
			"/api/stats": map[string]any{
				"get": map[string]any{
					"tags":        []string{"analytics"},
					"summary":     "Aggregate event statistics",
					"operationId": "getStats",
					"parameters": []map[string]any{
						apiKeyParam(),
						{
							"name":     "time_window",
							"in":       "query",
							"required": false,
							"schema": map[string]any{
								"type":    "string",
								"enum":    []string{"1h", "6h", "24h", "7d", "30d"},
								"default": "24h",
							},
						},
						{
							"name":     "freq",
							"in":       "query",
							"required": false,
							"schema": map[string]any{
								"type":    "string",
								"enum":    []string{"1m", "5m", "15m", "1h", "1d"},
								"default": "5m",
							},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Stats",
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": envelopeSchema(map[string]any{"$ref": "#/components/schemas/Stats"}),
								},
							},
						},
						"400": map[string]any{"description": "Unknown time_window or freq"},
						"401": map[string]any{"description": "Invalid or inactive API key"},
					},
				},
			},
			"/api/events/recent": map[string]any{
				"get": map[string]any{
					"tags":        []string{"events"},
					"summary":     "Most recent events, newest first (max 50)",
					"operationId": "recentEvents",
					"parameters": []map[string]any{
						apiKeyParam(),
						{
							"name":     "limit",
							"in":       "query",
							"required": false,
							"schema":   map[string]any{"type": "integer", "minimum": 1, "maximum": 50, "default": 50},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Events",
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": envelopeSchema(map[string]any{
										"type": "object",
										"properties": map[string]any{
											"project": map[string]any{"type": "string"},
											"count":   map[string]any{"type": "integer"},
											"events": map[string]any{
												"type":  "array",
												"items": map[string]any{"$ref": "#/components/schemas/Event"},
											},
										},
										"required": []string{"project", "count", "events"},
									}),
								},
							},
						},
						"401": map[string]any{"description": "Invalid or inactive API key"},
					},
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"SystemStatus": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{
							"type": "string",
							"enum": []string{"running", "exception"},
						},
						"active_projects": map[string]any{"type": "integer"},
						"message":         map[string]any{"type": "string"},
					},
					"required": []string{"status"},
				},
				"CaptureRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"api_key":    map[string]any{"type": "string"},
						"event_name": map[string]any{"type": "string", "maxLength": 100},
						"source":     map[string]any{"type": "string", "maxLength": 50, "default": "web"},
						"timestamp":  map[string]any{"type": "string", "format": "date-time"},
						"properties": map[string]any{"type": "object", "additionalProperties": true},
					},
					"required": []string{"api_key", "event_name"},
				},
				"CaptureResponse": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "integer", "format": "int64"},
						"event_name": map[string]any{"type": "string"},
						"source":     map[string]any{"type": "string"},
						"timestamp":  map[string]any{"type": "string", "format": "date-time"},
						"user_id":    map[string]any{"type": "string"},
						"session_id": map[string]any{"type": "string"},
						"ip_address": map[string]any{"type": "string"},
						"user_agent": map[string]any{"type": "string"},
						"rate_limit_info": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"ip":      map[string]any{"$ref": "#/components/schemas/RateLimitResult"},
								"project": map[string]any{"$ref": "#/components/schemas/RateLimitResult"},
							},
						},
						"message": map[string]any{"type": "string"},
					},
					"required": []string{"id", "event_name", "source", "timestamp"},
				},
				"RateLimitResult": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"allowed": map[string]any{"type": "boolean"},
						"count":   map[string]any{"type": "integer", "format": "int64"},
						"limit":   map[string]any{"type": "integer", "format": "int64"},
					},
					"required": []string{"allowed", "count", "limit"},
				},
				"Event": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "integer", "format": "int64"},
						"event_name": map[string]any{"type": "string"},
						"source":     map[string]any{"type": "string"},
						"timestamp":  map[string]any{"type": "string", "format": "date-time"},
						"properties": map[string]any{"type": "object", "additionalProperties": true},
						"user_id":    map[string]any{"type": "string"},
						"session_id": map[string]any{"type": "string"},
					},
					"required": []string{"id", "event_name", "source", "timestamp"},
				},
				"Stats": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"bucketed_counts": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"bucket":     map[string]any{"type": "string", "format": "date-time"},
									"event_name": map[string]any{"type": "string"},
									"count":      map[string]any{"type": "integer", "format": "int64"},
								},
								"required": []string{"bucket", "event_name", "count"},
							},
						},
						"event_name_totals": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"event_name": map[string]any{"type": "string"},
									"count":      map[string]any{"type": "integer", "format": "int64"},
								},
								"required": []string{"event_name", "count"},
							},
						},
						"source_counts": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"source": map[string]any{"type": "string"},
									"count":  map[string]any{"type": "integer", "format": "int64"},
								},
								"required": []string{"source", "count"},
							},
						},
						"recent_events": map[string]any{
							"type":  "array",
							"items": map[string]any{"$ref": "#/components/schemas/Event"},
						},
						"total_events": map[string]any{"type": "integer", "format": "int64"},
					},
					"required": []string{"bucketed_counts", "event_name_totals", "source_counts", "recent_events", "total_events"},
				},
			},
		},
	}
}
