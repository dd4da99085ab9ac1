package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Schedule Conflicts API",
        "description": "Detection and resolution of school timetable conflicts",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Conflicts", "description": "Conflict detection, suggestions and resolution"},
        {"name": "Scans", "description": "Asynchronous plan scans"},
        {"name": "Reports", "description": "Conflict report exports"}
    ],
    "paths": {
        "/conflicts": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "List conflicts",
                "parameters": [
                    {"name": "plan", "in": "query", "type": "integer"},
                    {"name": "resolved", "in": "query", "type": "boolean", "description": "true for resolved/ignored, false for open conflicts"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "event", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/summary": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "Conflict totals by status and severity",
                "parameters": [
                    {"name": "plan", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/check": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Scan the first active plan, or the plan given in the query",
                "parameters": [
                    {"name": "plan", "in": "query", "type": "integer"},
                    {"name": "clear", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active plan", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}/conflicts/check": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Scan a schedule plan for conflicts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "clear", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Plan not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/auto-resolve": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Auto-resolve every eligible detected conflict",
                "parameters": [
                    {"name": "plan", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/{id}": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "Get conflict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/{id}/suggestions": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "Suggested solutions for a conflict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/{id}/resolve": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Try to resolve a conflict automatically",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict already closed or event locked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/{id}/apply": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Apply one of the suggested solutions",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplySuggestionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Suggestion index out of range", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict already closed or event locked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Requires manual resolution", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/{id}/status": {
            "patch": {
                "tags": ["Conflicts"],
                "summary": "Change the status of a conflict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateConflictStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/scan": {
            "post": {
                "tags": ["Scans"],
                "summary": "Enqueue an asynchronous conflict scan",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Scan queue unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/scan/{jobId}": {
            "get": {
                "tags": ["Scans"],
                "summary": "Status of an asynchronous conflict scan",
                "parameters": [
                    {"name": "jobId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/export": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a conflict report",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "plan", "in": "query", "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]}
                ],
                "responses": {
                    "200": {"description": "Report file"}
                }
            }
        },
        "/conflicts/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Store a conflict report and return a download link",
                "parameters": [
                    {"name": "plan", "in": "query", "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Report storage not configured", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conflicts/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a stored conflict report",
                "security": [],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Report file"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ApplySuggestionRequest": {
            "type": "object",
            "properties": {
                "suggestionIndex": {"type": "integer", "minimum": 0},
                "resolvedBy": {"type": "string"}
            }
        },
        "UpdateConflictStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["detected", "acknowledged", "in_progress", "resolved", "ignored"]},
                "notes": {"type": "string"},
                "resolvedBy": {"type": "string"}
            }
        },
        "ScanRequest": {
            "type": "object",
            "properties": {
                "planId": {"type": "integer"},
                "clearDetected": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
