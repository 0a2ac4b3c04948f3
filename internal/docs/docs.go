// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/groups/{id}/free-riders/run": {
            "post": {
                "summary": "Run free-rider analysis for a group",
                "description": "Fetches repository activity, scores every member, replaces the group's persisted flags and returns them.",
                "produces": ["application/json"],
                "tags": ["free-riders"],
                "parameters": [
                    {"type": "string", "description": "Group ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/freerider.Report"}},
                    "400": {"description": "Invalid group ID", "schema": {"$ref": "#/definitions/errors.AppError"}},
                    "401": {"description": "Missing or invalid bearer token", "schema": {"$ref": "#/definitions/errors.AppError"}},
                    "404": {"description": "Unknown group, or group without repository", "schema": {"$ref": "#/definitions/errors.AppError"}},
                    "422": {"description": "Repository URL cannot be parsed", "schema": {"$ref": "#/definitions/errors.AppError"}},
                    "429": {"description": "Rate limited"},
                    "502": {"description": "Hosting API rejected the request", "schema": {"$ref": "#/definitions/errors.AppError"}},
                    "503": {"description": "Hosting API unavailable after retries", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/groups/{id}/free-riders": {
            "get": {
                "summary": "Get the persisted free riders of a group",
                "produces": ["application/json"],
                "tags": ["free-riders"],
                "parameters": [
                    {"type": "string", "description": "Group ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/freerider.Report"}},
                    "404": {"description": "Unknown group", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/groups/{id}": {
            "put": {
                "summary": "Create or replace a group",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["groups"],
                "parameters": [
                    {"type": "string", "description": "Group ID", "name": "id", "in": "path", "required": true},
                    {"description": "Group", "name": "group", "in": "body", "required": true, "schema": {"$ref": "#/definitions/freerider.groupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid group", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/evaluations": {
            "post": {
                "summary": "Record an evaluation",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["evaluations"],
                "parameters": [
                    {"description": "Evaluation", "name": "evaluation", "in": "body", "required": true, "schema": {"$ref": "#/definitions/freerider.evaluationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid evaluation", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        }
    },
    "definitions": {
        "errors.AppError": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "http_status": {"type": "integer"},
                "timestamp": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "freerider.ReportEntry": {
            "type": "object",
            "properties": {
                "member_id": {"type": "string"},
                "member_name": {"type": "string"},
                "composite_score": {"type": "number"},
                "commit_count": {"type": "integer"},
                "lines_added": {"type": "integer"},
                "lines_removed": {"type": "integer"},
                "files_modified": {"type": "integer"},
                "last_commit_date": {"type": "string", "x-nullable": true}
            }
        },
        "freerider.Report": {
            "type": "object",
            "properties": {
                "group_id": {"type": "string"},
                "run_id": {"type": "string"},
                "threshold": {"type": "number"},
                "generated_at": {"type": "string"},
                "diff_failures": {"type": "integer", "description": "Commits scored without diff stats. Only present on run responses."},
                "free_riders": {"type": "array", "items": {"$ref": "#/definitions/freerider.ReportEntry"}}
            }
        },
        "freerider.memberRequest": {
            "type": "object",
            "required": ["id"],
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "github_handle": {"type": "string"}
            }
        },
        "freerider.groupRequest": {
            "type": "object",
            "required": ["project_id"],
            "properties": {
                "project_id": {"type": "string"},
                "repository_url": {"type": "string"},
                "members": {"type": "array", "items": {"$ref": "#/definitions/freerider.memberRequest"}}
            }
        },
        "freerider.evaluationRequest": {
            "type": "object",
            "required": ["project_id", "student_id"],
            "properties": {
                "project_id": {"type": "string"},
                "student_id": {"type": "string"},
                "evaluator_id": {"type": "string"},
                "score": {"type": "number", "minimum": 0, "maximum": 1, "x-nullable": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Free-Rider-o-Meter API",
	Description:      "Contribution analysis and free-rider detection for project groups.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
