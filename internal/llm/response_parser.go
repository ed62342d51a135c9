package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrNoStructuredField is returned when a JSON response carries none of the
// keys a parser recognises.
var ErrNoStructuredField = errors.New("response has no recognised field")

// RawNode is an entity as emitted by the model, before validation.
type RawNode struct {
	ID   string
	Type string
}

// RawEdge is a relation as emitted by the model, before validation.
type RawEdge struct {
	Source   string
	Target   string
	Relation string
}

// RawGraph is the tolerant parse of an extraction response.
type RawGraph struct {
	Nodes []RawNode
	Edges []RawEdge
}

// Key names accepted for each field, in priority order. Models drift between
// these spellings even when the prompt pins one.
var (
	nodeListKeys = []string{"nodes", "entities"}
	edgeListKeys = []string{"edges", "relationships", "relations"}
	nodeIDKeys   = []string{"id", "name", "entity"}
	nodeTypeKeys = []string{"type", "label", "category"}
	edgeSrcKeys  = []string{"source", "from", "subject"}
	edgeTgtKeys  = []string{"target", "to", "object"}
	edgeRelKeys  = []string{"relation", "type", "relationship", "predicate"}
	termListKeys = []string{"terms", "entities", "keywords", "names"}
)

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	// Try to find JSON object boundaries
	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		// Handle string escaping
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		// Track if we're inside a string
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					// Found complete JSON object, return it
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseGraphExtraction parses a graph extraction response. Nodes may be
// objects or bare strings; entries missing required fields are skipped and
// logged. An error is returned only when the response is not a JSON object
// or has neither a node list nor an edge list.
func ParseGraphExtraction(response string) (*RawGraph, error) {
	fields, err := decodeObject(response)
	if err != nil {
		return nil, err
	}

	nodesRaw, hasNodes := firstField(fields, nodeListKeys)
	edgesRaw, hasEdges := firstField(fields, edgeListKeys)
	if !hasNodes && !hasEdges {
		return nil, fmt.Errorf("%w: expected nodes or edges", ErrNoStructuredField)
	}

	graph := &RawGraph{}

	if hasNodes {
		var items []json.RawMessage
		if err := json.Unmarshal(nodesRaw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse nodes: %w", err)
		}
		for _, item := range items {
			var name string
			if json.Unmarshal(item, &name) == nil {
				graph.Nodes = append(graph.Nodes, RawNode{ID: name})
				continue
			}
			var obj map[string]interface{}
			if err := json.Unmarshal(item, &obj); err != nil {
				log.Printf("response_parser: skipping node %s: %v", string(item), err)
				continue
			}
			id := stringField(obj, nodeIDKeys)
			if id == "" {
				log.Printf("response_parser: skipping node without id: %s", string(item))
				continue
			}
			graph.Nodes = append(graph.Nodes, RawNode{ID: id, Type: stringField(obj, nodeTypeKeys)})
		}
	}

	if hasEdges {
		var items []json.RawMessage
		if err := json.Unmarshal(edgesRaw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse edges: %w", err)
		}
		for _, item := range items {
			var obj map[string]interface{}
			if err := json.Unmarshal(item, &obj); err != nil {
				log.Printf("response_parser: skipping edge %s: %v", string(item), err)
				continue
			}
			edge := RawEdge{
				Source:   stringField(obj, edgeSrcKeys),
				Target:   stringField(obj, edgeTgtKeys),
				Relation: stringField(obj, edgeRelKeys),
			}
			if edge.Source == "" || edge.Target == "" {
				log.Printf("response_parser: skipping edge with missing endpoint: %v", obj)
				continue
			}
			graph.Edges = append(graph.Edges, edge)
		}
	}

	return graph, nil
}

// ParseTerms parses a term extraction response. The keys terms, entities,
// keywords and names are tried in that order and only the first one present
// is used; it must hold an array. Non-string elements are skipped.
func ParseTerms(response string) ([]string, error) {
	fields, err := decodeObject(response)
	if err != nil {
		return nil, err
	}

	raw, ok := firstField(fields, termListKeys)
	if !ok {
		return nil, fmt.Errorf("%w: expected one of %v", ErrNoStructuredField, termListKeys)
	}

	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to parse terms: %w", err)
	}

	terms := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			log.Printf("response_parser: skipping non-string term %v", item)
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, s)
		}
	}
	return terms, nil
}

func decodeObject(response string) (map[string]json.RawMessage, error) {
	cleaned := extractJSON(response)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return fields, nil
}

// firstField returns the value of the first key present in fields.
func firstField(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

// stringField returns the first non-empty string value among keys.
func stringField(obj map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
