package engine

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/internal/storage"
)

// GraphContextHeader prefixes every non-empty graph context.
const GraphContextHeader = "Knowledge Graph Connections:\n"

// maxQueryTerms caps the entity terms looked up per question.
const maxQueryTerms = 5

var capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)

// questionStopwords are capitalized words that open questions rather than name entities.
var questionStopwords = map[string]bool{
	"What": true, "How": true, "When": true, "Where": true, "Why": true,
	"Who": true, "The": true, "This": true, "That": true, "These": true,
	"Those": true, "Which": true, "Can": true, "Does": true, "Is": true,
	"Are": true, "Did": true, "Do": true, "Tell": true, "Describe": true,
	"List": true, "Was": true, "Were": true, "In": true, "For": true,
}

// GraphRAG builds the graph part of an answer's grounding: the relations
// around the entities a question mentions.
type GraphRAG struct {
	llm          llm.TextGenerator
	graph        storage.GraphStore
	maxRelations int
	storeTimeout time.Duration
}

// NewGraphRAG creates a GraphRAG. A nil completion client always uses the
// capitalized-phrase heuristic for term extraction.
func NewGraphRAG(client llm.TextGenerator, graph storage.GraphStore, maxRelations int) *GraphRAG {
	return &GraphRAG{llm: client, graph: graph, maxRelations: maxRelations}
}

// QueryContext returns the relations touching the question's entities,
// rendered one per line under GraphContextHeader. Only edges asserted by
// documents within scope are used; the zero Scope searches the whole graph.
// The empty string means nothing was found.
func (g *GraphRAG) QueryContext(ctx context.Context, question string, scope storage.Scope) string {
	terms := g.ExtractTerms(ctx, question)
	if len(terms) == 0 {
		log.Printf("graphrag: no entities extracted from question")
		return ""
	}

	findCtx, cancel := storeContext(ctx, g.storeTimeout)
	defer cancel()
	relations, err := g.graph.FindRelations(findCtx, terms, scope, g.maxRelations)
	if err != nil {
		log.Printf("graphrag: ERROR graph query failed: %v", err)
		return ""
	}
	if len(relations) == 0 {
		log.Printf("graphrag: no connections found for %v", terms)
		return ""
	}

	lines := make([]string, len(relations))
	for i, r := range relations {
		lines[i] = r.String()
	}
	log.Printf("graphrag: found %d connections for %v", len(lines), terms)
	return GraphContextHeader + strings.Join(lines, "\n")
}

// ExtractTerms asks the completion service for the entity names in question.
// When the call fails or yields nothing usable, CapitalizedTerms is used.
func (g *GraphRAG) ExtractTerms(ctx context.Context, question string) []string {
	if g.llm != nil {
		response, err := g.llm.Complete(ctx, llm.TermExtractionPrompt(question),
			llm.CompletionOptions{Temperature: 0.1, MaxTokens: 100, JSON: true})
		if err == nil {
			var parsed []string
			if parsed, err = llm.ParseTerms(response); err == nil {
				terms := make([]string, 0, maxQueryTerms)
				for _, t := range parsed {
					if utf8.RuneCountInString(t) > 1 {
						terms = append(terms, t)
					}
					if len(terms) == maxQueryTerms {
						break
					}
				}
				if len(terms) > 0 {
					return terms
				}
			}
		}
		if err != nil {
			log.Printf("graphrag: term extraction failed, using heuristic: %v", err)
		}
	}
	return CapitalizedTerms(question)
}

// CapitalizedTerms extracts capitalized phrases from text, dropping leading
// question words. Phrases of two characters or fewer are skipped.
func CapitalizedTerms(text string) []string {
	terms := []string{}
	seen := make(map[string]bool)
	for _, phrase := range capitalizedPhrase.FindAllString(text, -1) {
		words := strings.Fields(phrase)
		for len(words) > 0 && questionStopwords[words[0]] {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		term := strings.Join(words, " ")
		if utf8.RuneCountInString(term) <= 2 || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}
