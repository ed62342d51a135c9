package llm

import (
	"fmt"
	"strings"
)

// GraphRelationTypes are the relation labels the extraction prompt asks for.
var GraphRelationTypes = []string{
	"CEO_OF",
	"FOUNDED",
	"OPERATES_IN",
	"COMPETES_WITH",
	"PARTNERS_WITH",
	"PRODUCES",
	"MANUFACTURES",
	"HAS_SUBSIDIARY",
	"SUPPLIES_TO",
	"LOCATED_IN",
	"SPECIALIZES_IN",
}

// GraphNodeTypes are the entity types the extraction prompt asks for.
var GraphNodeTypes = []string{"ORG", "PERSON", "PRODUCT", "INDUSTRY", "CONCEPT", "BUSINESS_CONCEPT"}

// GraphExtractionPrompt asks for the entity graph asserted by one chunk of a filing.
func GraphExtractionPrompt(chunk string) string {
	return fmt.Sprintf(`You are a financial analyst building a knowledge graph from a company filing.

Extract the companies, people, products, industries and business concepts mentioned in the text,
and the relationships between them that the text states explicitly.

Rules:
- Use only these relation types: %s
- Use only these node types: %s
- Use the full proper name of each entity as its id (e.g. "Apple Inc", "Tim Cook").
- Only state that someone is CEO_OF a company if the text says so directly.
- Ignore XBRL tags, table headers, page numbers and accounting line items.
- Do not invent relationships that are not in the text.

Return ONLY a JSON object in exactly this format:
{
  "nodes": [{"id": "Alice Smith", "type": "PERSON"}, {"id": "Acme Corp", "type": "ORG"}],
  "edges": [{"source": "Alice Smith", "target": "Acme Corp", "relation": "CEO_OF"}]
}

Text:
%s`, strings.Join(GraphRelationTypes, ", "), strings.Join(GraphNodeTypes, ", "), chunk)
}

// TermExtractionPrompt asks for the entity names a question is about.
func TermExtractionPrompt(question string) string {
	return fmt.Sprintf(`Extract 3-5 key terms (company names, people, products or industries) from this question
that should be looked up in a knowledge graph.

Question: %s

Return JSON format: {"terms": ["term1", "term2"]}`, question)
}

// AnswerPrompt wraps the grounding block with the answering instruction.
func AnswerPrompt(question, grounding string) string {
	return fmt.Sprintf(`You are a financial research assistant. Answer the question using ONLY the context below.
If the context does not contain the answer, say that the documents do not provide enough information.
Cite figures exactly as they appear in the context.

Context:
%s

Question: %s

Answer:`, grounding, question)
}
