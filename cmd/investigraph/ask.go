package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/investigraph/internal/engine"
	"github.com/scrypster/investigraph/internal/llm"
)

var (
	askDocument string
	askOwner    string
	askSources  bool
	askDebug    bool
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from ingested filings",
	Long: `Retrieves the most relevant passages of one document (--document) or of all
documents of an owner (--owner), adds the knowledge graph connections of the
entities named in the question and asks the LLM for a grounded answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askDocument, "document", "d", "", "restrict the search to one document")
	askCmd.Flags().StringVarP(&askOwner, "owner", "o", "", "search every document of this owner")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the passages the answer is grounded on")
	askCmd.Flags().BoolVar(&askDebug, "debug", false, "print a retrieval report and provider circuit breaker state")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.MarkFlagsMutuallyExclusive("document", "owner")
	askCmd.MarkFlagsOneRequired("document", "owner")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var tc *engine.TraceCollector
		if askDebug {
			tc = engine.NewTraceCollector()
			ctx = engine.WithTraceCollector(ctx, tc)
		}

		answer, err := a.engine.Ask(ctx, engine.QueryRequest{
			Question:   args[0],
			DocumentID: askDocument,
			OwnerID:    askOwner,
		})
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}

		var report *engine.RetrievalReport
		var breakers []llm.BreakerStatus
		if tc != nil {
			report = engine.BuildRetrievalReport(tc.Events(), tc.ElapsedMS())
			breakers = a.engine.CircuitBreakers()
		}

		if askJSON {
			return outputAnswerJSON(cmd, answer, report, breakers)
		}
		outputAnswerText(cmd, answer, report, breakers)
		return nil
	})
}

func outputAnswerJSON(cmd *cobra.Command, answer *engine.Answer, report *engine.RetrievalReport, breakers []llm.BreakerStatus) error {
	out := struct {
		*engine.Answer
		Retrieval       *engine.RetrievalReport `json:"retrieval,omitempty"`
		CircuitBreakers []llm.BreakerStatus     `json:"circuit_breakers,omitempty"`
	}{answer, report, breakers}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *engine.Answer, report *engine.RetrievalReport, breakers []llm.BreakerStatus) {
	cmd.Println(answer.Text)

	if askSources && len(answer.Chunks) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, c := range answer.Chunks {
			cmd.Printf("  [%d] %s (distance %.4f, score %.4f)\n", i+1, c.ID, c.Distance, c.Score)
			cmd.Printf("      %s\n", snippet(c.Content, 160))
		}
	}

	if answer.GraphContext != "" && askSources {
		cmd.Println()
		cmd.Println(answer.GraphContext)
	}

	if report != nil {
		cmd.Println()
		cmd.Printf("Retrieval (%s, %dms): %d candidates, %d returned\n",
			report.Scope, report.TimingMS, report.CandidatesFound, len(report.Returned))
		if report.Fallback != "" {
			cmd.Printf("  rerank fallback: %s\n", report.Fallback)
		}
		for _, r := range report.Reranked {
			cmd.Printf("  %s distance=%.4f score=%.4f\n", r.ChunkID, r.Distance, r.Score)
		}
	}

	for _, b := range breakers {
		cmd.Printf("Circuit breaker %s: %s (%d requests, %d failures, %d consecutive)\n",
			b.Name, b.State, b.TotalRequests, b.TotalFailures, b.ConsecutiveFailures)
	}
}

// snippet collapses whitespace and shortens s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
