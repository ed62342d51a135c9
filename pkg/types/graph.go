package types

import (
	"fmt"
	"strings"
	"unicode"
)

// Node type constants emitted by the extractor.
const (
	NodeTypeOrganization    = "ORG"
	NodeTypePerson          = "PERSON"
	NodeTypeProduct         = "PRODUCT"
	NodeTypeIndustry        = "INDUSTRY"
	NodeTypeConcept         = "CONCEPT"
	NodeTypeBusinessConcept = "BUSINESS_CONCEPT"

	// NodeTypeEntity is assigned to nodes synthesized for dangling edge endpoints.
	NodeTypeEntity = "ENTITY"
)

// Relation type constants.
const (
	RelationCEOOf        = "CEO_OF"
	RelationCompetesWith = "COMPETES_WITH"
	RelationRelatedTo    = "RELATED_TO"
)

// GraphNode is a globally shared entity, identified by its normalized name.
type GraphNode struct {
	ID    string `json:"id"`    // NodeID(Name)
	Name  string `json:"name"`  // Display name as last asserted
	Type  string `json:"type"`  // ORG, PERSON, PRODUCT, ...
	Label string `json:"label"` // ReadableLabel(Name, Type)
}

// GraphEdge is a relation asserted by one document. Structurally identical
// edges from different documents are distinct records.
type GraphEdge struct {
	SourceID   string `json:"source"`
	TargetID   string `json:"target"`
	Relation   string `json:"relation"`
	DocumentID string `json:"document_id"`
}

// Key returns the merge identity of the edge.
func (e GraphEdge) Key() string {
	return e.SourceID + "\x00" + e.TargetID + "\x00" + e.Relation + "\x00" + e.DocumentID
}

// GraphExtraction is the validated output of one extraction call.
type GraphExtraction struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// IsEmpty reports whether the extraction carries nothing to merge.
func (g GraphExtraction) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// Graph is a read view of stored nodes and edges.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Relation is one edge rendered with display names, as used for prompt context.
type Relation struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// String renders the relation as "Source --[REL]--> Target".
func (r Relation) String() string {
	return fmt.Sprintf("%s --[%s]--> %s", r.Source, r.Relation, r.Target)
}

// NormalizeName trims an identifier, collapses inner whitespace and strips the
// trailing "Member" tag that XBRL-derived text attaches to dimension values.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if len(name) > len("Member") && strings.HasSuffix(name, "Member") {
		name = strings.TrimSpace(strings.TrimSuffix(name, "Member"))
	}
	return name
}

// NodeID returns the content-addressed identity for an entity name.
func NodeID(name string) string {
	return strings.ToLower(NormalizeName(name))
}

var nodeTypeIcons = map[string]string{
	NodeTypeOrganization:    "🏢",
	NodeTypePerson:          "👤",
	NodeTypeProduct:         "📦",
	NodeTypeIndustry:        "🏭",
	NodeTypeConcept:         "💡",
	NodeTypeEntity:          "⚪",
	NodeTypeBusinessConcept: "💼",
}

// ReadableLabel builds the display label shown in graph views, e.g. "🏢 Acme Corp".
func ReadableLabel(name, nodeType string) string {
	text := titleCase(strings.ReplaceAll(NormalizeName(name), "_", " "))
	icon, ok := nodeTypeIcons[strings.ToUpper(nodeType)]
	if !ok {
		icon = nodeTypeIcons[NodeTypeEntity]
	}
	return icon + " " + text
}

var relationLabels = map[string]string{
	RelationCEOOf:        "is CEO of",
	"OPERATES_IN":        "operates in",
	RelationCompetesWith: "competes with",
	"MANUFACTURES":       "manufactures",
	"PARTNERS_WITH":      "partners with",
	"SUPPLIES_TO":        "supplies to",
	RelationRelatedTo:    "related to",
	"HAS_RISK":           "has risk in",
	"PRODUCES":           "produces",
}

// RelationLabel returns a human-readable phrase for a relation type.
func RelationLabel(relation string) string {
	if label, ok := relationLabels[relation]; ok {
		return label
	}
	return strings.ToLower(strings.ReplaceAll(relation, "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
