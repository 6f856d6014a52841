package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the console.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>webaffe-console Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the console endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "webaffe-console", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Sign in with email and password",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "identity and bearer token" }, "401": { "description": "invalid credential" }, "429": { "description": "too many requests" } }
      }
    },
    "/auth/signup": {
      "post": {
        "summary": "Create an email and password account",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "201": { "description": "identity and bearer token" }, "400": { "description": "weak password or invalid email" }, "409": { "description": "email already in use" } }
      }
    },
    "/auth/google/start": { "get": { "summary": "Redirect to Google consent", "responses": { "302": { "description": "redirect" } } } },
    "/auth/google/callback": { "get": { "summary": "Complete Google popup sign-in", "responses": { "200": { "description": "identity and bearer token" } } } },
    "/auth/magic-link": {
      "post": { "summary": "Send a passwordless sign-in link", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"}}}}}}, "responses": { "202": { "description": "link sent" } } }
    },
    "/auth/magic-link/complete": {
      "get": { "summary": "Complete a sign-in link", "responses": { "200": { "description": "identity and bearer token" }, "401": { "description": "invalid link" } } },
      "post": { "summary": "Complete a sign-in link with an explicit email", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"token":{"type":"string"},"email":{"type":"string"}}}}}}, "responses": { "200": { "description": "identity and bearer token" } } }
    },
    "/auth/logout": { "post": { "summary": "Sign out", "responses": { "200": { "description": "logged out" } } } },
    "/api/session": { "get": { "summary": "Current session state", "responses": { "200": { "description": "session" } } } },
    "/api/session/events": { "get": { "summary": "Session state as server-sent events", "responses": { "200": { "description": "event stream" } } } },
    "/api/app/me": { "get": { "summary": "Signed-in identity and profile", "responses": { "200": { "description": "me" }, "401": { "description": "signed out" }, "403": { "description": "pending approval" } } } },
    "/api/app/config": { "get": { "summary": "Global configuration", "responses": { "200": { "description": "config" } } } },
    "/api/admin/users": { "get": { "summary": "List profiles", "responses": { "200": { "description": "profiles" } } } },
    "/api/admin/users/stats": { "get": { "summary": "Profile counters", "responses": { "200": { "description": "stats" } } } },
    "/api/admin/users/{uid}/approve": { "post": { "summary": "Approve a user", "responses": { "200": { "description": "approved" } } } },
    "/api/admin/users/{uid}/promote": { "post": { "summary": "Promote an approved user", "responses": { "200": { "description": "promoted" }, "409": { "description": "not approved" } } } },
    "/api/admin/users/{uid}/demote": { "post": { "summary": "Demote an admin", "responses": { "200": { "description": "demoted" }, "403": { "description": "protected account" } } } },
    "/api/admin/users/{uid}/revoke": { "post": { "summary": "Revoke approval", "responses": { "200": { "description": "revoked" }, "403": { "description": "protected account" } } } },
    "/api/admin/settings": {
      "get": { "summary": "Read global configuration", "responses": { "200": { "description": "config" } } },
      "put": { "summary": "Merge global configuration", "responses": { "200": { "description": "config" } } }
    },
    "/api/admin/boards/{kind}": { "get": { "summary": "List board items", "responses": { "200": { "description": "items" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  },
  "components": { "securitySchemes": { "session": { "type": "http", "scheme": "bearer" } } }
}`
