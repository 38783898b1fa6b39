// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with `swag init -g cmd/api/main.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List schedules",
                "parameters": [
                    {"type": "string", "name": "user_id", "in": "query"},
                    {"type": "string", "name": "object_id", "in": "query"},
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ScheduleListResponse"}}}
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Create a schedule",
                "parameters": [{"name": "schedule", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScheduleRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ScheduleResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get a schedule",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ScheduleResponse"}},
                    "404": {"description": "Schedule not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "patch": {
                "tags": ["Schedules"],
                "summary": "Update a schedule",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "schedule", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateScheduleRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ScheduleResponse"}}}
            },
            "delete": {
                "tags": ["Schedules"],
                "summary": "Delete a schedule",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "Schedule deleted successfully"}}
            }
        },
        "/schedules/{id}/events": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List events of a schedule",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/EventListResponse"}}}
            }
        },
        "/events": {
            "get": {
                "tags": ["Events"],
                "summary": "List events",
                "parameters": [
                    {"type": "string", "name": "schedule_id", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/EventListResponse"}}}
            },
            "post": {
                "tags": ["Events"],
                "summary": "Create a standalone event",
                "parameters": [{"name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEventRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/Event"}}}
            }
        },
        "/events/{id}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get an event",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Event"}}}
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Delete an event",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "Event deleted successfully"}}
            }
        },
        "/events/{id}/reschedule": {
            "post": {
                "tags": ["Events"],
                "summary": "Reschedule a pending event",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Event"}},
                    "409": {"description": "Event is not pending", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/events/{id}/cancel": {
            "post": {
                "tags": ["Events"],
                "summary": "Cancel a pending event",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Event"}}}
            }
        },
        "/events/{id}/complete": {
            "post": {
                "tags": ["Events"],
                "summary": "Complete an in-progress event",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Event"}}}
            }
        },
        "/oneoff/fired": {
            "post": {
                "tags": ["OneOff"],
                "summary": "One-off trigger delivery",
                "parameters": [
                    {"type": "string", "name": "X-Webhook-Secret", "in": "header"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OneOffPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/FiredResponse"}},
                    "401": {"description": "Invalid secret", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "Schedule": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "cron": {"type": "string", "example": "0 9 * * *"},
                "timezone": {"type": "string", "example": "UTC"},
                "start_at": {"type": "integer"},
                "end_at": {"type": "integer"},
                "duration_sec": {"type": "integer"},
                "user_id": {"type": "string"},
                "object_id": {"type": "string"},
                "meta": {"type": "object"}
            }
        },
        "ScheduleResponse": {
            "allOf": [
                {"$ref": "#/definitions/Schedule"},
                {"type": "object", "properties": {"next_event": {"$ref": "#/definitions/Event"}}}
            ]
        },
        "ScheduleListResponse": {
            "type": "object",
            "properties": {
                "schedules": {"type": "array", "items": {"$ref": "#/definitions/ScheduleResponse"}},
                "pagination": {"$ref": "#/definitions/Pagination"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "current_page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "has_more": {"type": "boolean"}
            }
        },
        "CreateScheduleRequest": {
            "type": "object",
            "required": ["cron", "start_at"],
            "properties": {
                "cron": {"type": "string", "example": "0 9 * * *"},
                "timezone": {"type": "string", "example": "America/New_York"},
                "start_at": {"type": "integer", "example": 1767258000},
                "end_at": {"type": "integer"},
                "duration_sec": {"type": "integer"},
                "user_id": {"type": "string"},
                "object_id": {"type": "string"},
                "meta": {"type": "object"}
            }
        },
        "UpdateScheduleRequest": {
            "type": "object",
            "properties": {
                "cron": {"type": "string"},
                "timezone": {"type": "string"},
                "start_at": {"type": "integer"},
                "end_at": {"type": "integer"},
                "clear_end_at": {"type": "boolean"},
                "duration_sec": {"type": "integer"},
                "meta": {"type": "object"}
            }
        },
        "Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "schedule_id": {"type": "string"},
                "plan_start": {"type": "integer"},
                "plan_end": {"type": "integer"},
                "actual_start": {"type": "integer"},
                "actual_end": {"type": "integer"},
                "status": {"type": "string", "enum": ["pending", "in_progress", "completed", "cancelled"]},
                "one_off_id": {"type": "string"},
                "failure_reason": {"type": "string"},
                "user_id": {"type": "string"},
                "object_id": {"type": "string"},
                "meta": {"type": "object"}
            }
        },
        "EventListResponse": {
            "type": "object",
            "properties": {"events": {"type": "array", "items": {"$ref": "#/definitions/Event"}}}
        },
        "CreateEventRequest": {
            "type": "object",
            "required": ["plan_start"],
            "properties": {
                "plan_start": {"type": "integer"},
                "plan_end": {"type": "integer"},
                "user_id": {"type": "string"},
                "object_id": {"type": "string"},
                "meta": {"type": "object"}
            }
        },
        "RescheduleEventRequest": {
            "type": "object",
            "required": ["plan_start"],
            "properties": {"plan_start": {"type": "integer"}, "plan_end": {"type": "integer"}}
        },
        "OneOffPayload": {
            "type": "object",
            "required": ["eventId", "kind"],
            "properties": {"eventId": {"type": "string"}, "scheduleId": {"type": "string"}, "kind": {"type": "string", "example": "start"}}
        },
        "FiredResponse": {
            "type": "object",
            "properties": {"event_id": {"type": "string"}, "result": {"type": "string", "example": "executed"}}
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "details": {}, "trace_id": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Schedule Reconciler API",
	Description:      "Materializes recurring schedules into events and keeps one-off triggers in step with them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
