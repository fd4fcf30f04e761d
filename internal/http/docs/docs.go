// Package docs registers the OpenAPI document served at /swagger. The
// operation annotations live on the handlers; this file carries the
// rendered document for the swag registry.
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
        "/research": {
            "post": {"operationId": "submitResearch", "tags": ["Research"], "summary": "Submit research",
                "consumes": ["multipart/form-data"],
                "responses": {"201": {"description": "Created"}, "400": {"$ref": "#/responses/Error"}, "409": {"$ref": "#/responses/Error"}}}
        },
        "/research/{id}": {
            "get": {"operationId": "getResearch", "tags": ["Research"], "summary": "Get research",
                "responses": {"200": {"description": "OK"}, "404": {"$ref": "#/responses/Error"}}},
            "put": {"operationId": "updateResearch", "tags": ["Research"], "summary": "Edit research",
                "responses": {"200": {"description": "OK"}, "403": {"$ref": "#/responses/Error"}, "409": {"$ref": "#/responses/Error"}}},
            "delete": {"operationId": "deleteResearch", "tags": ["Research"], "summary": "Delete research",
                "responses": {"204": {"description": "No Content"}, "403": {"$ref": "#/responses/Error"}}}
        },
        "/research/{id}/status": {
            "post": {"operationId": "changeStatus", "tags": ["Workflow"], "summary": "Change research status",
                "responses": {"200": {"description": "OK"}, "409": {"$ref": "#/responses/Error"}}}
        },
        "/research/{id}/track": {
            "post": {"operationId": "assignTrack", "tags": ["Workflow"], "summary": "Assign research to a track",
                "responses": {"200": {"description": "OK"}, "409": {"$ref": "#/responses/Error"}}}
        },
        "/research/{id}/history": {
            "get": {"operationId": "statusHistory", "tags": ["Workflow"], "summary": "Status history",
                "responses": {"200": {"description": "OK"}}}
        },
        "/research/{id}/track-history": {
            "get": {"operationId": "trackHistory", "tags": ["Workflow"], "summary": "Track history",
                "responses": {"200": {"description": "OK"}}}
        },
        "/research/{id}/reviewers": {
            "post": {"operationId": "assignReviewer", "tags": ["Reviews"], "summary": "Assign a reviewer",
                "responses": {"201": {"description": "Created"}, "409": {"$ref": "#/responses/Error"}}}
        },
        "/research/{id}/score": {
            "get": {"operationId": "researchScore", "tags": ["Reviews"], "summary": "Average review score",
                "responses": {"200": {"description": "OK"}}}
        },
        "/research/{id}/reviews": {
            "get": {"operationId": "listReviews", "tags": ["Reviews"], "summary": "Reviews of a research item",
                "responses": {"200": {"description": "OK"}}}
        },
        "/research/{id}/reviewer-suggestions": {
            "get": {"operationId": "suggestReviewers", "tags": ["Reviews"], "summary": "Reviewer suggestions",
                "responses": {"200": {"description": "OK"}}}
        },
        "/reviews/{id}/decision": {
            "post": {"operationId": "submitReviewDecision", "tags": ["Reviews"], "summary": "Submit a review decision",
                "responses": {"200": {"description": "OK"}, "400": {"$ref": "#/responses/Error"}}}
        },
        "/reviews/overdue": {
            "get": {"operationId": "overdueReviews", "tags": ["Reviews"], "summary": "Overdue reviews",
                "responses": {"200": {"description": "OK"}}}
        },
        "/files/{id}": {
            "delete": {"operationId": "deleteFile", "tags": ["Files"], "summary": "Delete a research file",
                "responses": {"204": {"description": "No Content"}}}
        },
        "/files/{id}/active": {
            "put": {"operationId": "setFileActive", "tags": ["Files"], "summary": "Toggle file visibility",
                "responses": {"204": {"description": "No Content"}}}
        }
    },
    "responses": {
        "Error": {
            "description": "Error envelope",
            "schema": {
                "type": "object",
                "properties": {
                    "request_id": {"type": "string"},
                    "code": {"type": "string"},
                    "message": {"type": "string"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported metadata; BasePath is set from configuration
// before the UI is mounted.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Research Review API",
	Description:      "Submission, track assignment, peer review and status workflow for research items.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
