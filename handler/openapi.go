package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the gateway.
func OpenAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "AI Gateway",
			"description": "Multi-tenant HTTP front door for a small fleet of LLM backends",
			"version":     "1.0.0",
		},
		"servers": []map[string]interface{}{
			{"url": "http://localhost:8080", "description": "Local development"},
		},
		"paths": openAPIPaths(),
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"ApiKeyAuth": map[string]interface{}{
					"type": "apiKey",
					"in":   "header",
					"name": "X-API-Key",
				},
				"BearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": openAPISchemas(),
		},
		"security": []map[string]interface{}{
			{"ApiKeyAuth": []string{}},
			{"BearerAuth": []string{}},
		},
		"tags": []map[string]interface{}{
			{"name": "Completions", "description": "OpenAI-compatible completion endpoints"},
			{"name": "Analysis", "description": "Derived code analysis and security scan endpoints"},
			{"name": "Auth", "description": "API key lifecycle and OAuth login"},
			{"name": "Ops", "description": "Health, readiness, and metrics"},
		},
	}
}

func openAPIPaths() map[string]interface{} {
	jsonBody := func(ref string) map[string]interface{} {
		return map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{"$ref": "#/components/schemas/" + ref},
				},
			},
		}
	}
	okResponse := func(ref string) map[string]interface{} {
		return map[string]interface{}{
			"200": map[string]interface{}{
				"description": "OK",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": map[string]interface{}{"$ref": "#/components/schemas/" + ref},
					},
				},
			},
			"default": map[string]interface{}{
				"description": "Error",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": map[string]interface{}{"$ref": "#/components/schemas/Error"},
					},
				},
			},
		}
	}

	return map[string]interface{}{
		"/v1/models": map[string]interface{}{
			"get": map[string]interface{}{"tags": []string{"Completions"}, "summary": "List available models", "responses": okResponse("ModelList")},
		},
		"/v1/completions": map[string]interface{}{
			"post": map[string]interface{}{"tags": []string{"Completions"}, "summary": "Text completion", "requestBody": jsonBody("CompletionRequest"), "responses": okResponse("CompletionResponse")},
		},
		"/v1/chat/completions": map[string]interface{}{
			"post": map[string]interface{}{"tags": []string{"Completions"}, "summary": "Chat completion", "requestBody": jsonBody("CompletionRequest"), "responses": okResponse("CompletionResponse")},
		},
		"/v1/code/analysis": map[string]interface{}{
			"post": map[string]interface{}{"tags": []string{"Analysis"}, "summary": "Code analysis", "requestBody": jsonBody("CompletionRequest"), "responses": okResponse("CompletionResponse")},
		},
		"/v1/security/scan": map[string]interface{}{
			"post": map[string]interface{}{"tags": []string{"Analysis"}, "summary": "Security scan", "requestBody": jsonBody("CompletionRequest"), "responses": okResponse("CompletionResponse")},
		},
		"/v1/usage": map[string]interface{}{
			"get": map[string]interface{}{"tags": []string{"Auth"}, "summary": "Current principal's usage", "responses": okResponse("Usage")},
		},
		"/auth/api-keys": map[string]interface{}{
			"post": map[string]interface{}{"tags": []string{"Auth"}, "summary": "Create an API key", "responses": okResponse("ApiKey")},
			"get":  map[string]interface{}{"tags": []string{"Auth"}, "summary": "List API keys", "responses": okResponse("ApiKeyList")},
		},
		"/auth/api-keys/{id}": map[string]interface{}{
			"delete": map[string]interface{}{"tags": []string{"Auth"}, "summary": "Revoke an API key", "responses": okResponse("Empty")},
		},
		"/auth/oauth/{provider}": map[string]interface{}{
			"get": map[string]interface{}{"tags": []string{"Auth"}, "summary": "Start OAuth login", "responses": map[string]interface{}{"302": map[string]interface{}{"description": "Redirect to provider"}}},
		},
		"/auth/oauth/{provider}/callback": map[string]interface{}{
			"get": map[string]interface{}{"tags": []string{"Auth"}, "summary": "OAuth callback", "responses": okResponse("Token")},
		},
		"/health": map[string]interface{}{
			"get": map[string]interface{}{"tags": []string{"Ops"}, "summary": "Aggregate component health", "responses": okResponse("Health")},
		},
		"/ready": map[string]interface{}{
			"get": map[string]interface{}{"tags": []string{"Ops"}, "summary": "Readiness probe", "responses": okResponse("Health")},
		},
	}
}

func openAPISchemas() map[string]interface{} {
	return map[string]interface{}{
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":     map[string]interface{}{"type": "string"},
				"message":   map[string]interface{}{"type": "string"},
				"requestId": map[string]interface{}{"type": "string"},
				"timestamp": map[string]interface{}{"type": "string"},
			},
		},
		"CompletionRequest": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"model":      map[string]interface{}{"type": "string"},
				"prompt":     map[string]interface{}{"type": "string"},
				"messages":   map[string]interface{}{"type": "array"},
				"max_tokens": map[string]interface{}{"type": "integer"},
			},
		},
		"CompletionResponse": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":      map[string]interface{}{"type": "string"},
				"model":   map[string]interface{}{"type": "string"},
				"choices": map[string]interface{}{"type": "array"},
				"usage":   map[string]interface{}{"type": "object"},
			},
		},
		"ModelList": map[string]interface{}{"type": "object"},
		"Usage":     map[string]interface{}{"type": "object"},
		"ApiKey":    map[string]interface{}{"type": "object"},
		"ApiKeyList": map[string]interface{}{"type": "object"},
		"Token":     map[string]interface{}{"type": "object"},
		"Health":    map[string]interface{}{"type": "object"},
		"Empty":     map[string]interface{}{"type": "object"},
	}
}

// OpenAPIHandler serves the OpenAPI spec at /openapi.json.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := OpenAPISpec()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(spec)
	}
}

// SwaggerUIHandler serves a minimal Swagger UI page.
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>AI Gateway API</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
    SwaggerUIBundle({
        url: '/openapi.json',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
    });
    </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
