package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
)

// OutputParser extracts tool calls from providers that inline them in text.
type OutputParser struct {
	toolCallPatterns []*regexp.Regexp
	trailingCommas   *regexp.Regexp
	unquotedKeys     *regexp.Regexp
}

// NewOutputParser creates a parser with patterns for common inline formats.
func NewOutputParser() *OutputParser {
	return &OutputParser{
		toolCallPatterns: []*regexp.Regexp{
			// JSON array format: [{"name": "tool", "arguments": {...}}]
			regexp.MustCompile(`\[\s*\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*(\{.*?\})\s*\}\s*\]`),
			// Function call format: tool_name({"arg": "value"})
			regexp.MustCompile(`(\w+)\s*\(\s*(\{.*?\})\s*\)`),
		},
		trailingCommas: regexp.MustCompile(`,\s*([}\]])`),
		unquotedKeys:   regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`),
	}
}

// ParseToolCalls returns inline tool calls whose names pass known.
func (p *OutputParser) ParseToolCalls(text string, known func(string) bool) []ports.ToolCall {
	var calls []ports.ToolCall
	seen := make(map[string]bool)

	for _, pattern := range p.toolCallPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 3 {
				continue
			}
			name := strings.TrimSpace(match[1])
			if known != nil && !known(name) {
				continue
			}

			args := strings.TrimSpace(match[2])
			if !json.Valid([]byte(args)) {
				args = p.fixJSON(args)
				if !json.Valid([]byte(args)) {
					continue
				}
			}

			key := name + args
			if seen[key] {
				continue
			}
			seen[key] = true
			calls = append(calls, ports.ToolCall{Name: name, Args: json.RawMessage(args)})
		}
	}
	return calls
}

// fixJSON repairs trailing commas, unquoted keys and single quotes.
func (p *OutputParser) fixJSON(s string) string {
	s = p.trailingCommas.ReplaceAllString(s, "$1")
	s = p.unquotedKeys.ReplaceAllString(s, `$1"$2":`)
	return strings.ReplaceAll(s, "'", "\"")
}
