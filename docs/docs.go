// Package docs holds the OpenAPI document served at /swagger when
// SWAGGER_ENABLED is set. Regenerate with `swag init -g cmd/server/main.go`
// after changing handler annotations.
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
        "/chat/config": {
            "get": {
                "description": "Returns the public display configuration of a chatbot.",
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Resolve a widget config",
                "operationId": "getChatConfig",
                "parameters": [
                    {"type": "string", "description": "Public chatbot id", "name": "chatbot_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chatapi.Config"}},
                    "400": {"description": "Missing chatbot_id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Store failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/session": {
            "post": {
                "description": "Resolves the chatbot's owner and creates an active session.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Start a visitor session",
                "operationId": "startChatSession",
                "parameters": [
                    {"description": "Chatbot and optional visitor details", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/chatapi.StartSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chatapi.StartSessionResponse"}},
                    "400": {"description": "Missing chatbot_id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Store failure, with detail", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/message": {
            "post": {
                "description": "Stores a visitor message. A repeated Idempotency-Key for the same session returns the original message and sets Idempotency-Replayed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Send a visitor message",
                "operationId": "postChatMessage",
                "parameters": [
                    {"type": "string", "description": "Retry key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/chatapi.SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chatapi.SendMessageResponse"}},
                    "400": {"description": "Missing field or empty content", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Store failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/messages": {
            "get": {
                "description": "Returns up to 50 messages strictly after ` + "`after`" + `, oldest first. An unknown cursor yields an empty list.",
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Poll for new messages",
                "operationId": "pollChatMessages",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "session_id", "in": "query", "required": true},
                    {"type": "string", "description": "Last message id already seen", "name": "after", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/chatapi.Message"}}},
                    "400": {"description": "Missing session_id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Store failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/debug": {
            "get": {
                "description": "Reports whether the chat tables can be read and written. No secrets.",
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Store self-check",
                "operationId": "chatDebug",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/repo.Diagnostics"}},
                    "503": {"description": "No store configured", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/sessions/{id}/messages": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "The widget picks the reply up on its next poll. Idempotent with a key.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Send an admin reply",
                "operationId": "replyToSession",
                "parameters": [
                    {"type": "string", "description": "Retry key", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true},
                    {"description": "Reply", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ReplyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "chatapi.Config": {
            "type": "object",
            "properties": {
                "widget_title": {"type": "string"},
                "welcome_message": {"type": "string"},
                "primary_color": {"type": "string", "example": "#14b8a6"},
                "position": {"type": "string", "example": "bottom-right"},
                "avatar_url": {"type": "string"},
                "show_branding": {"type": "boolean"},
                "placeholder_text": {"type": "string"},
                "offline_message": {"type": "string"}
            }
        },
        "chatapi.StartSessionRequest": {
            "type": "object",
            "properties": {
                "chatbot_id": {"type": "string"},
                "visitor_name": {"type": "string"},
                "visitor_email": {"type": "string"}
            }
        },
        "chatapi.StartSessionResponse": {
            "type": "object",
            "properties": {"session_id": {"type": "string"}}
        },
        "chatapi.SendMessageRequest": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "content": {"type": "string"},
                "sender_type": {"type": "string", "example": "visitor"}
            }
        },
        "chatapi.SendMessageResponse": {
            "type": "object",
            "properties": {
                "message_id": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "chatapi.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "content": {"type": "string"},
                "sender_type": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "handlers.ReplyRequest": {
            "type": "object",
            "required": ["content"],
            "properties": {"content": {"type": "string", "example": "Happy to help!"}}
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"},
                "error": {"type": "string"},
                "detail": {"type": "string"}
            }
        },
        "repo.Diagnostics": {
            "type": "object",
            "properties": {
                "driver": {"type": "string"},
                "config_read": {"type": "string"},
                "session_read": {"type": "string"},
                "session_insert": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Live Chat API",
	Description:      "Multi-tenant live-chat widget backend. Visitors use /chat/*, dashboards use /admin/*.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
