// Package docs registers the OpenAPI document served under /swagger/.
package docs

import "github.com/swaggo/swag"

// InstanceName is the swag registry key the swagger UI is mounted with.
const InstanceName = "pooling"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check",
                "description": "Reports mode, uptime and the state of each dependency. Answers 503 when a dependency is down.",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/rides": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["rides"],
                "summary": "Request a pooled ride",
                "description": "Stores the ride and places it into a nearby forming pool or a new one. 202 means matching was deferred and the ride is pending.\ndetour_km is a straight-line centroid-spread estimate (mean of pickup and dropoff spread around their centroids), not a routed distance. It is 0 when the ride opened a new pool.",
                "parameters": [
                    {"description": "Ride request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.CreateRideRequest"}}
                ],
                "responses": {
                    "201": {"description": "Ride, pool and detour estimate", "schema": {"$ref": "#/definitions/dto.CreateRideResponse"}},
                    "202": {"description": "Ride pending", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad request", "schema": {"type": "object", "additionalProperties": true}},
                    "422": {"description": "Validation error", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/rides/{ride_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["rides"],
                "summary": "Get a ride",
                "parameters": [
                    {"type": "string", "description": "Ride ID", "name": "ride_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/rides/{ride_id}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["rides"],
                "summary": "Cancel a ride",
                "parameters": [
                    {"type": "string", "description": "Ride ID", "name": "ride_id", "in": "path", "required": true},
                    {"description": "Cancellation reason", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/dto.CancelRideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not found", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "Invalid state or conflict", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/pools/{pool_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["pools"],
                "summary": "Get a pool",
                "parameters": [
                    {"type": "string", "description": "Pool ID", "name": "pool_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not found", "schema": {"type": "object", "additionalProperties": true}},
                    "410": {"description": "Pool expired", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/pools/{pool_id}/{action}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["pools"],
                "summary": "Move a pool along its lifecycle",
                "parameters": [
                    {"type": "string", "description": "Pool ID", "name": "pool_id", "in": "path", "required": true},
                    {"enum": ["confirm", "start", "complete", "cancel"], "type": "string", "description": "Lifecycle action", "name": "action", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not found", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "Invalid transition or conflict", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/ws/passengers/{passenger_id}": {
            "get": {
                "tags": ["websocket"],
                "summary": "Passenger pool updates",
                "parameters": [
                    {"type": "string", "description": "Passenger ID", "name": "passenger_id", "in": "path", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "400": {"description": "Invalid passenger id"}
                }
            }
        }
    },
    "definitions": {
        "dto.Location": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "address": {"type": "string"}
            }
        },
        "dto.CreateRideRequest": {
            "type": "object",
            "properties": {
                "passenger_id": {"type": "string"},
                "pickup": {"$ref": "#/definitions/dto.Location"},
                "dropoff": {"$ref": "#/definitions/dto.Location"},
                "luggage": {"type": "integer", "minimum": 0, "maximum": 3}
            }
        },
        "dto.PoolResponse": {
            "type": "object",
            "properties": {
                "pool_id": {"type": "string"},
                "status": {"type": "string", "enum": ["forming", "confirmed", "in_progress", "completed", "cancelled"]},
                "members": {"type": "array", "items": {"type": "string"}},
                "seats_occupied": {"type": "integer"},
                "luggage_total": {"type": "integer"},
                "centroid": {"type": "object", "additionalProperties": true},
                "bounding_box": {"type": "object", "additionalProperties": true},
                "max_detour_km": {"type": "number", "description": "Bound on the centroid-spread detour estimate, a straight-line proxy. Not road routing."},
                "expires_at": {"type": "string"},
                "cancellation_reason": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "dto.CreateRideResponse": {
            "type": "object",
            "properties": {
                "ride": {"type": "object", "additionalProperties": true},
                "pool": {"$ref": "#/definitions/dto.PoolResponse"},
                "detour_km": {"type": "number", "description": "Centroid-spread detour estimate the ride joined with (0 for a new pool). Not a routed distance."},
                "message": {"type": "string"}
            }
        },
        "dto.CancelRideRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Ride Pooling API",
	Description:      "Groups ride requests with nearby pickups into shared pools under seat, luggage, detour and expiry limits.",
	InfoInstanceName: InstanceName,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
