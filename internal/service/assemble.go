package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures prompt text against a token budget.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter counts with the cl100k_base encoding, which is close
// enough across the chat models the engine targets for budget purposes.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter creates the production token counter.
func NewTokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// AssembledContext is a rendered prompt block ready for injection.
type AssembledContext struct {
	Text       string   `json:"text"`
	TokenCount int      `json:"token_count"`
	Summary    bool     `json:"summary_included"`
	MemoryIDs  []string `json:"memory_ids"`
	TurnCount  int      `json:"turn_count"`
	Truncated  bool     `json:"truncated"`
}

// AssemblyService renders owner state into a bounded context block.
type AssemblyService struct {
	store    Store
	memories *MemoryService
	counter  TokenCounter
	policy   config.Policy
	metrics  *metrics.Collector
}

// NewAssemblyService creates an assembly service.
func NewAssemblyService(store Store, memories *MemoryService, counter TokenCounter, policy config.Policy, collector *metrics.Collector) *AssemblyService {
	return &AssemblyService{
		store:    store,
		memories: memories,
		counter:  counter,
		policy:   policy,
		metrics:  collector,
	}
}

// Assemble builds the context block for a query: latest summary first,
// then relevant memories, then the last turns verbatim. When the render
// exceeds the token budget, memories are dropped lowest-scored first,
// then the summary; recent turns are never cut. Identical stored state
// and query produce byte-identical output.
func (s *AssemblyService) Assemble(ctx context.Context, owner models.Owner, query string, tokenBudget int) (*AssembledContext, error) {
	if s.metrics != nil {
		defer func(start time.Time) {
			s.metrics.RecordTiming(metrics.OpAssemble, time.Since(start))
		}(time.Now())
	}

	summary, err := s.store.LatestSummary(ctx, owner)
	if err != nil {
		return nil, err
	}

	results, err := s.memories.Search(ctx, owner, query, SearchOptions{Limit: s.policy.Assemble.MemoryLimit})
	if err != nil {
		return nil, err
	}

	turns, err := s.store.RecentTurns(ctx, owner, s.policy.Assemble.RecentTurns)
	if err != nil {
		return nil, err
	}

	// A memory whose every source turn is visible verbatim in the recent
	// window adds nothing; drop it rather than repeat the information.
	turnIDs := make(map[string]bool, len(turns))
	for _, t := range turns {
		turnIDs[models.MustRecordIDString(t.ID)] = true
	}
	memories := results[:0]
	for _, r := range results {
		if !coveredByTurns(r.Memory.SourceTurnIDs, turnIDs) {
			memories = append(memories, r)
		}
	}

	truncated := false
	includeSummary := summary != nil
	text := render(summary, includeSummary, memories, turns)

	for tokenBudget > 0 && s.counter.Count(text) > tokenBudget {
		switch {
		case len(memories) > 0:
			// Search returns score-descending, so the tail is the
			// cheapest to lose.
			memories = memories[:len(memories)-1]
		case includeSummary:
			includeSummary = false
		default:
			// Only turns remain; they are never cut.
			truncated = true
			text = render(nil, false, nil, turns)
			return s.finish(text, false, nil, turns, truncated), nil
		}
		truncated = true
		text = render(summary, includeSummary, memories, turns)
	}

	return s.finish(text, includeSummary, memories, turns, truncated), nil
}

func (s *AssemblyService) finish(text string, summaryIncluded bool, memories []SearchResult, turns []models.Turn, truncated bool) *AssembledContext {
	ids := make([]string, 0, len(memories))
	for _, m := range memories {
		ids = append(ids, models.MustRecordIDString(m.Memory.ID))
	}
	return &AssembledContext{
		Text:       text,
		TokenCount: s.counter.Count(text),
		Summary:    summaryIncluded,
		MemoryIDs:  ids,
		TurnCount:  len(turns),
		Truncated:  truncated,
	}
}

func coveredByTurns(sourceTurnIDs []string, window map[string]bool) bool {
	if len(sourceTurnIDs) == 0 {
		return false
	}
	for _, id := range sourceTurnIDs {
		if !window[id] {
			return false
		}
	}
	return true
}

func render(summary *models.SummaryRecord, includeSummary bool, memories []SearchResult, turns []models.Turn) string {
	var sb strings.Builder

	if includeSummary && summary != nil {
		sb.WriteString("## Conversation summary\n\n")
		sb.WriteString(summary.SummaryText)
		sb.WriteString("\n")
	}

	if len(memories) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Relevant memories\n\n")
		for _, m := range memories {
			fmt.Fprintf(&sb, "- [%s] %s\n", m.Memory.Kind, m.Memory.Content)
		}
	}

	if len(turns) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Recent turns\n\n")
		for _, t := range turns {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
		}
	}

	return sb.String()
}
