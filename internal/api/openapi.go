package api

import "net/http"

// handleOpenAPI serves GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the command API.
func buildOpenAPIDoc() map[string]any {
	timeouts := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ready":    map[string]any{"type": "string", "example": "30s"},
			"running":  map[string]any{"type": "string", "example": "30s"},
			"result":   map[string]any{"type": "string", "example": "1m"},
			"shutdown": map[string]any{"type": "string", "example": "10s"},
		},
	}
	outcomeResponses := map[string]any{
		"200": map[string]any{"description": "Command succeeded"},
		"400": map[string]any{"description": "Bad request"},
		"401": map[string]any{"description": "Missing or invalid API key"},
		"502": map[string]any{"description": "Remote exception or send failure"},
		"503": map[string]any{"description": "Remote engine shut down"},
		"504": map[string]any{"description": "Timed out waiting for the remote engine"},
	}
	bearer := []any{map[string]any{"BearerAuth": []string{}}}

	post := func(id, summary string, body map[string]any) map[string]any {
		op := map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   outcomeResponses,
			"security":    bearer,
		}
		if body != nil {
			op["requestBody"] = map[string]any{
				"content": map[string]any{
					"application/json": map[string]any{"schema": body},
				},
			}
		}
		return map[string]any{"post": op}
	}
	get := func(id, summary string) map[string]any {
		return map[string]any{"get": map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
				"401": map[string]any{"description": "Missing or invalid API key"},
			},
			"security": bearer,
		}}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "drivelink",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/command": post("sendCommand", "Dispatch a command and wait for its result", map[string]any{
				"type":     "object",
				"required": []string{"properties"},
				"properties": map[string]any{
					"properties": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "string"},
					},
					"timeouts": timeouts,
				},
			}),
			"/command/file": post("sendCommandFile", "Dispatch a command loaded by the remote engine from a file", map[string]any{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]any{
					"path":     map[string]any{"type": "string"},
					"timeouts": timeouts,
				},
			}),
			"/message": post("sendMessage", "Send free text to the remote engine", map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			}),
			"/shutdown": post("shutdown", "Ask the remote engine to shut down", map[string]any{
				"type":       "object",
				"properties": map[string]any{"timeouts": timeouts},
			}),
			"/commands":      get("listCommands", "Recent commands, newest first"),
			"/commands/{id}": get("getCommand", "One recorded command"),
			"/events":        get("streamEvents", "Server-sent engine and command events"),
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
