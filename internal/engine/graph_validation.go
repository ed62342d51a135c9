package engine

import (
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/pkg/types"
)

// MaxLeadershipTargets is the most distinct companies one person may be
// CEO_OF within a single extraction.
const MaxLeadershipTargets = 2

// identifierDenylist holds markup artifacts that leak into model output from
// inline XBRL. Matched case-insensitively as substrings.
var identifierDenylist = []string{"us-gaap", "xbrl", "member", "domain", "table", "abstract"}

var (
	memberSuffixPattern = regexp.MustCompile(`(?i)member$`)
	numericPattern      = regexp.MustCompile(`^[0-9][0-9.,]*$`)
)

// CleanIdentifier normalizes an entity name emitted by the model and reports
// whether it is usable as a graph node.
func CleanIdentifier(raw string) (string, bool) {
	name := strings.Join(strings.Fields(raw), " ")
	name = strings.TrimSpace(memberSuffixPattern.ReplaceAllString(name, ""))

	if utf8.RuneCountInString(name) < 2 || numericPattern.MatchString(name) {
		return "", false
	}

	lower := strings.ToLower(name)
	for _, term := range identifierDenylist {
		if strings.Contains(lower, term) {
			return "", false
		}
	}
	return name, true
}

// normalizeTag upper-cases a type or relation tag and joins words with underscores.
func normalizeTag(tag, fallback string) string {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	tag = strings.Join(strings.FieldsFunc(tag, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	}), "_")
	if tag == "" {
		return fallback
	}
	return tag
}

// NormalizeExtraction validates raw model output and turns it into nodes and
// edges ready for MergeGraph. Invalid records are dropped individually.
//
// Every surviving edge has both endpoints in the returned node list; missing
// endpoints are synthesized with type ENTITY.
func NormalizeExtraction(raw *llm.RawGraph, documentID string) types.GraphExtraction {
	out := types.GraphExtraction{Nodes: []types.GraphNode{}, Edges: []types.GraphEdge{}}
	if raw == nil {
		return out
	}

	nodeIndex := make(map[string]int)
	putNode := func(name, nodeType string, overwrite bool) string {
		id := types.NodeID(name)
		if i, ok := nodeIndex[id]; ok {
			if overwrite {
				out.Nodes[i] = types.GraphNode{ID: id, Name: name, Type: nodeType, Label: types.ReadableLabel(name, nodeType)}
			}
			return id
		}
		nodeIndex[id] = len(out.Nodes)
		out.Nodes = append(out.Nodes, types.GraphNode{ID: id, Name: name, Type: nodeType, Label: types.ReadableLabel(name, nodeType)})
		return id
	}

	for _, n := range raw.Nodes {
		name, ok := CleanIdentifier(n.ID)
		if !ok {
			continue
		}
		// Repeated nodes keep their first position; the last type asserted wins.
		putNode(name, normalizeTag(n.Type, types.NodeTypeConcept), true)
	}

	seen := make(map[string]bool)
	leadership := make(map[string]map[string]bool)

	for _, e := range raw.Edges {
		src, ok := CleanIdentifier(e.Source)
		if !ok {
			continue
		}
		tgt, ok := CleanIdentifier(e.Target)
		if !ok {
			continue
		}
		srcID, tgtID := types.NodeID(src), types.NodeID(tgt)
		if srcID == tgtID {
			continue
		}
		relation := normalizeTag(e.Relation, types.RelationRelatedTo)

		key := srcID + "\x00" + tgtID + "\x00" + relation
		if seen[key] {
			continue
		}

		if relation == types.RelationCEOOf {
			targets := leadership[srcID]
			if targets == nil {
				targets = make(map[string]bool)
				leadership[srcID] = targets
			}
			if !targets[tgtID] && len(targets) >= MaxLeadershipTargets {
				log.Printf("graph: WARNING limiting %s for %s, dropping target %s", relation, src, tgt)
				continue
			}
			targets[tgtID] = true
		}
		seen[key] = true

		if _, ok := nodeIndex[srcID]; !ok {
			putNode(src, types.NodeTypeEntity, false)
		}
		if _, ok := nodeIndex[tgtID]; !ok {
			putNode(tgt, types.NodeTypeEntity, false)
		}

		out.Edges = append(out.Edges, types.GraphEdge{
			SourceID:   srcID,
			TargetID:   tgtID,
			Relation:   relation,
			DocumentID: documentID,
		})
	}

	return out
}
