// Package docs registers the OpenAPI document served at /openapi.json.
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
    "paths": {
        "/transmissions/url": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Transmissions"],
                "summary": "Push an image URL to a matrix display",
                "parameters": [
                    {"description": "image and device", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/transmissions.URLRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/transmission.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/transmissions/stored": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Transmissions"],
                "summary": "Push a stored image to a matrix display",
                "parameters": [
                    {"description": "image id and device", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/transmissions.StoredRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/transmission.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/transmissions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Transmissions"],
                "summary": "Recent transmissions",
                "parameters": [
                    {"type": "integer", "description": "max records (default 50, max 500)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "only this device endpoint", "name": "endpoint", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/transmissions/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Transmissions"],
                "summary": "Transmission success and failure counts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/instances": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "List registered displays",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "Register a display",
                "parameters": [
                    {"description": "instance", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/instances.CreateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/instances/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "Get a display",
                "parameters": [{"type": "string", "description": "instance id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "Update a display",
                "parameters": [
                    {"type": "string", "description": "instance id", "name": "id", "in": "path", "required": true},
                    {"description": "fields to change", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/instances.UpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "delete": {
                "tags": ["Instances"],
                "summary": "Delete a display",
                "parameters": [{"type": "string", "description": "instance id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/instances/{id}/display": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Instances"],
                "summary": "Push an image to a registered display",
                "description": "exactly one of imageUrl or imageId",
                "parameters": [
                    {"type": "string", "description": "instance id", "name": "id", "in": "path", "required": true},
                    {"description": "image source", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/instances.DisplayRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/transmission.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/images": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Images"],
                "summary": "List stored images",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Images"],
                "summary": "Upload a source image",
                "parameters": [
                    {"type": "file", "description": "image file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "display name", "name": "name", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/images/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Images"],
                "summary": "Image metadata",
                "parameters": [{"type": "string", "description": "image id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "delete": {
                "tags": ["Images"],
                "summary": "Delete an image",
                "parameters": [{"type": "string", "description": "image id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/images/{id}/raw": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["Images"],
                "summary": "Download the original image",
                "parameters": [{"type": "string", "description": "image id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/system/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.APIResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "transmission.Result": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "Request timed out after 15 seconds"},
                "success": {"type": "boolean"}
            }
        },
        "transmissions.URLRequest": {
            "type": "object",
            "properties": {
                "endpointUrl": {"type": "string", "example": "http://192.168.1.50"},
                "imageUrl": {"type": "string", "example": "https://example.com/cat.png"}
            }
        },
        "transmissions.StoredRequest": {
            "type": "object",
            "properties": {
                "endpointUrl": {"type": "string", "example": "http://192.168.1.50"},
                "imageId": {"type": "string"}
            }
        },
        "instances.CreateRequest": {
            "type": "object",
            "required": ["endpoint", "name"],
            "properties": {
                "endpoint": {"type": "string", "example": "http://192.168.1.50"},
                "labels": {"type": "object", "additionalProperties": {"type": "string"}},
                "name": {"type": "string", "example": "lobby"}
            }
        },
        "instances.UpdateRequest": {
            "type": "object",
            "properties": {
                "endpoint": {"type": "string"},
                "labels": {"type": "object", "additionalProperties": {"type": "string"}},
                "name": {"type": "string"}
            }
        },
        "instances.DisplayRequest": {
            "type": "object",
            "properties": {
                "imageId": {"type": "string"},
                "imageUrl": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Matrix Server API",
	Description:      "Pushes images to LED matrix displays as raw RGBA frames.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
