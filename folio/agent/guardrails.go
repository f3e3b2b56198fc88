package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Guardrails enforces the tool allowlist, argument schemas and output masking.
type Guardrails struct {
	allowlist     map[string]bool  // allowed tool names, empty allows all
	outputFilters []*regexp.Regexp // patterns masked in outputs
	validator     *JSONValidator
}

// NewGuardrails creates guardrails with default masking patterns.
func NewGuardrails() *Guardrails {
	return &Guardrails{
		allowlist: make(map[string]bool),
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
			regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]{16,}`),
		},
		validator: NewJSONValidator(),
	}
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// Allowed reports whether name passes the allowlist.
func (g *Guardrails) Allowed(name string) bool {
	return len(g.allowlist) == 0 || g.allowlist[name]
}

// ValidateToolCall checks the allowlist and validates arguments against schema.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall, schema []byte) error {
	if call.Name == "" {
		return fmt.Errorf("%w: tool name cannot be empty", ErrUnsupportedTool)
	}
	if !g.Allowed(call.Name) {
		return fmt.Errorf("%w: %s is not in allowlist", ErrUnsupportedTool, call.Name)
	}
	if err := g.validator.Validate(call.Args, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// SanitizeOutput masks sensitive values in text shown to visitors.
func (g *Guardrails) SanitizeOutput(output string) string {
	for _, filter := range g.outputFilters {
		output = filter.ReplaceAllString(output, "[REDACTED]")
	}
	return output
}

// JSONValidator validates JSON documents, caching compiled schemas.
type JSONValidator struct {
	mu      sync.Mutex
	schemas map[string]*gojsonschema.Schema
}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{schemas: make(map[string]*gojsonschema.Schema)}
}

// Validate checks data against schema. An empty schema only requires valid JSON.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if !json.Valid(data) {
		return fmt.Errorf("arguments are not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	compiled, err := v.compile(schema)
	if err != nil {
		return err
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (v *JSONValidator) compile(schema []byte) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[string(schema)]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid tool schema: %w", err)
	}
	v.schemas[string(schema)] = s
	return s, nil
}
