// Package openapi provides reflective OpenAPI 3.0 document generation for the
// routes the API registers.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered operations.
// Request and response schemas are extracted from Go types by reflection.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	errorModel  any
	operations  []Operation
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Operation describes one route for the document.
type Operation struct {
	Method   string // e.g. http.MethodPost
	Path     string // chi-style path, e.g. /api/v1/domains/{id}
	ID       string
	Summary  string
	Tag      string
	Params   []Param
	Request  any   // model of the JSON request body, nil for none
	Response any   // model of the success body
	Status   int   // success status, defaults to 200
	Errors   []int // error statuses answered with the error model
	Secured  bool
}

// Param is a path or query parameter.
type Param struct {
	Name        string
	In          string // "path" or "query"
	Description string
	Required    bool
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		if version != "" {
			g.version = version
		}
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// WithErrorModel sets the model used for every error response.
func WithErrorModel(model any) Option {
	return func(g *Generator) {
		g.errorModel = model
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Linkhost API",
		version:     "1.0.0",
		description: "Custom domain verification and routing for short links",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds an operation to the document.
func (g *Generator) Register(ops ...Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, ops...)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearerAuth": &openapi3.SecuritySchemeRef{
					Value: openapi3.NewJWTSecurityScheme(),
				},
			},
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	var errorRef *openapi3.SchemaRef
	if g.errorModel != nil {
		errorRef = g.schemaFor(spec, reflect.TypeOf(g.errorModel))
	}

	for _, op := range g.operations {
		item := spec.Paths.Value(op.Path)
		if item == nil {
			item = &openapi3.PathItem{}
			spec.Paths.Set(op.Path, item)
		}
		item.SetOperation(op.Method, g.buildOperation(spec, op, errorRef))
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the document as JSON.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// YAMLHandler returns an HTTP handler that serves the document as YAML.
func (g *Generator) YAMLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := g.YAML()
		if err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write(out)
	}
}

// YAML renders the document as YAML. The document is marshalled through its
// JSON form so the kin-openapi extensions and omitempty rules apply.
func (g *Generator) YAML() ([]byte, error) {
	raw, err := json.Marshal(g.Generate())
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) buildOperation(spec *openapi3.T, op Operation, errorRef *openapi3.SchemaRef) *openapi3.Operation {
	out := &openapi3.Operation{
		OperationID: op.ID,
		Summary:     op.Summary,
		Responses:   &openapi3.Responses{},
	}
	if op.Tag != "" {
		out.Tags = []string{op.Tag}
	}
	if op.Secured {
		out.Security = &openapi3.SecurityRequirements{
			openapi3.NewSecurityRequirement().Authenticate("bearerAuth"),
		}
	}

	for _, p := range op.Params {
		out.Parameters = append(out.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:        p.Name,
				In:          p.In,
				Description: p.Description,
				Required:    p.Required || p.In == openapi3.ParameterInPath,
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
			},
		})
	}

	if op.Request != nil {
		out.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(g.schemaFor(spec, reflect.TypeOf(op.Request))),
		}
	}

	status := op.Status
	if status == 0 {
		status = http.StatusOK
	}
	success := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if op.Response != nil {
		success = success.WithJSONSchemaRef(g.schemaFor(spec, reflect.TypeOf(op.Response)))
	}
	out.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: success})

	errs := append([]int(nil), op.Errors...)
	sort.Ints(errs)
	for _, code := range errs {
		resp := openapi3.NewResponse().WithDescription(http.StatusText(code))
		if errorRef != nil {
			resp = resp.WithJSONSchemaRef(errorRef)
		}
		out.Responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{Value: resp})
	}

	return out
}

// =============================================================================
// Schema Generation
// =============================================================================

var timeType = reflect.TypeOf(time.Time{})

// schemaFor returns a schema for t. Named structs are added to the document's
// components and referenced.
func (g *Generator) schemaFor(spec *openapi3.T, t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.schemaFor(spec, t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.schemaFor(spec, t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.schemaFor(spec, t.Elem())
		if schema.Ref == "" && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == timeType {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		if t.Name() == "" {
			return &openapi3.SchemaRef{Value: g.structSchema(spec, t)}
		}
		name := t.Name()
		if _, ok := spec.Components.Schemas[name]; !ok {
			// Reserve the name first so recursive types terminate.
			spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
			spec.Components.Schemas[name].Value = g.structSchema(spec, t)
		}
		return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
}

// structSchema extracts an object schema from the exported fields of t.
func (g *Generator) structSchema(spec *openapi3.T, t reflect.Type) *openapi3.Schema {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}

		schema.Properties[name] = g.schemaFor(spec, field.Type)
		if !omitempty && field.Type.Kind() != reflect.Ptr {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}
