package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/investigraph/internal/llm"
	"github.com/scrypster/investigraph/pkg/types"
)

// DegradedAnswerMessage is returned in place of an answer when the
// completion service cannot be reached.
const DegradedAnswerMessage = "The answering service is temporarily unavailable. Please try again in a few minutes."

var errEmptyAnswer = errors.New("completion returned an empty answer")

// Synthesizer answers a question from retrieved chunks and graph context.
type Synthesizer struct {
	llm   llm.TextGenerator
	retry llm.RetryPolicy
}

// NewSynthesizer creates a Synthesizer using the given completion client.
func NewSynthesizer(client llm.TextGenerator, retry llm.RetryPolicy) *Synthesizer {
	return &Synthesizer{llm: client, retry: retry}
}

// Grounding joins chunk texts and graph context into the block the model
// is told to answer from.
func Grounding(chunks []types.ScoredChunk, graphContext string) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(c.Content))
	}
	if graphContext != "" {
		b.WriteString(graphContext)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Answer always returns text: the model's answer, or DegradedAnswerMessage
// once the retry policy is exhausted. The second result reports degradation.
func (s *Synthesizer) Answer(ctx context.Context, question string, chunks []types.ScoredChunk, graphContext string) (string, bool) {
	if s.llm == nil {
		return DegradedAnswerMessage, true
	}

	prompt := llm.AnswerPrompt(question, Grounding(chunks, graphContext))

	var answer string
	err := s.retry.Do(ctx, "answer synthesis", func(ctx context.Context) error {
		text, err := s.llm.Complete(ctx, prompt, llm.CompletionOptions{Temperature: 0.1})
		if err != nil {
			return err
		}
		if text = strings.TrimSpace(text); text == "" {
			return errEmptyAnswer
		}
		answer = text
		return nil
	})
	if err != nil {
		log.Printf("ERROR: answer synthesis degraded: %v", err)
		return DegradedAnswerMessage, true
	}
	return answer, false
}
