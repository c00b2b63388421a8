// Package openapi publishes an OpenAPI 3.0 document describing the routes
// that packages register with it.
package openapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Param is a query or path parameter.
type Param struct {
	Name        string
	In          string // "query" or "path"
	Description string
	Schema      map[string]interface{}
	Required    bool
}

// Route describes one operation.
type Route struct {
	Method      string
	Path        string // OpenAPI form, e.g. /patients/{id}
	Summary     string
	OperationID string
	Tag         string
	Params      []Param
	// RequestSchema names a component schema sent as the JSON body.
	RequestSchema string
	// Responses maps a status code to its description and, optionally, the
	// component schema carried in the envelope's data field.
	Responses map[int]Response
}

type Response struct {
	Description string
	Schema      string
	Array       bool
}

// Generator collects routes and schemas and renders the document.
type Generator struct {
	title   string
	version string
	baseURL string

	mu      sync.RWMutex
	routes  []Route
	schemas map[string]map[string]interface{}
}

func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL, schemas: make(map[string]map[string]interface{})}
}

func (g *Generator) AddRoute(r Route) {
	g.mu.Lock()
	g.routes = append(g.routes, r)
	g.mu.Unlock()
}

func (g *Generator) AddSchema(name string, schema map[string]interface{}) {
	g.mu.Lock()
	g.schemas[name] = schema
	g.mu.Unlock()
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	paths := make(map[string]interface{})
	for _, r := range g.routes {
		item, _ := paths[r.Path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[r.Path] = item
		}
		item[strings.ToLower(r.Method)] = g.buildOperation(r)
	}

	schemas := map[string]interface{}{"Envelope": envelopeSchema()}
	for name, s := range g.schemas {
		schemas[name] = s
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers":    []map[string]interface{}{{"url": g.baseURL}},
		"paths":      paths,
		"components": map[string]interface{}{"schemas": schemas},
	}
}

func (g *Generator) buildOperation(r Route) map[string]interface{} {
	op := map[string]interface{}{
		"summary":     r.Summary,
		"operationId": r.OperationID,
	}
	if r.Tag != "" {
		op["tags"] = []string{r.Tag}
	}
	if len(r.Params) > 0 {
		params := make([]map[string]interface{}, 0, len(r.Params))
		for _, p := range r.Params {
			param := map[string]interface{}{
				"name":   p.Name,
				"in":     p.In,
				"schema": p.Schema,
			}
			if p.Description != "" {
				param["description"] = p.Description
			}
			if p.Required || p.In == "path" {
				param["required"] = true
			}
			params = append(params, param)
		}
		op["parameters"] = params
	}
	if r.RequestSchema != "" {
		op["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{"$ref": "#/components/schemas/" + r.RequestSchema},
				},
			},
		}
	}

	codes := make([]int, 0, len(r.Responses))
	for code := range r.Responses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	responses := make(map[string]interface{}, len(codes))
	for _, code := range codes {
		responses[strconv.Itoa(code)] = buildResponse(r.Responses[code])
	}
	op["responses"] = responses
	return op
}

// buildResponse wraps the data schema in the {ok, data, error} envelope.
func buildResponse(resp Response) map[string]interface{} {
	schema := map[string]interface{}{"$ref": "#/components/schemas/Envelope"}
	if resp.Schema != "" {
		data := map[string]interface{}{"$ref": "#/components/schemas/" + resp.Schema}
		if resp.Array {
			data = map[string]interface{}{"type": "array", "items": data}
		}
		schema = map[string]interface{}{
			"allOf": []interface{}{
				map[string]interface{}{"$ref": "#/components/schemas/Envelope"},
				map[string]interface{}{"properties": map[string]interface{}{"data": data}},
			},
		}
	}
	return map[string]interface{}{
		"description": resp.Description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func envelopeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"ok"},
		"properties": map[string]interface{}{
			"ok":    map[string]interface{}{"type": "boolean"},
			"data":  map[string]interface{}{},
			"error": map[string]interface{}{"type": "string"},
			"fields": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": map[string]interface{}{"type": "string"},
			},
		},
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Patient Records API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: "openapi.json", dom_id: "#swagger-ui", deepLinking: true})
  </script>
</body>
</html>`

// RegisterRoutes serves openapi.json and a Swagger UI page under group.
func (g *Generator) RegisterRoutes(group *echo.Group) {
	group.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	group.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
