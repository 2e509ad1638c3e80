package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/perso-labs/recall/internal/models"
)

const summarizeSystemPrompt = `You are a conversation summarizer for a long-running assistant. Condense the given block of conversation turns into a compact summary that preserves what matters for future sessions.

Output format (exactly these sections, in this order):
SUMMARY:
<two to five sentences covering what happened>
TOPICS: topic1, topic2
ENTITIES: entity1, entity2
DECISIONS: decision 1; decision 2

Guidelines:
- Keep concrete details: names, dates, numbers, outcomes
- TOPICS and ENTITIES are comma-separated lists
- DECISIONS are semicolon-separated; write NONE if no decisions were made`

// SummarizeTurns asks the model to condense a block of turns. The raw
// response is parsed with ParseSummary.
func (m *Model) SummarizeTurns(ctx context.Context, turns []models.Turn) (string, error) {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", t.Seq, t.Role, t.Content)
	}

	userPrompt := fmt.Sprintf(`Conversation turns:
%s
Summary:`, sb.String())

	return m.GenerateWithSystem(ctx, summarizeSystemPrompt, userPrompt)
}

// ParseSummary parses model output in the sectioned summary format. A
// response without a SUMMARY section is an error; the list sections are
// optional.
func ParseSummary(raw string) (*models.SummaryDraft, error) {
	draft := &models.SummaryDraft{}

	var summaryLines []string
	inSummary := false

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "SUMMARY:"):
			inSummary = true
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "SUMMARY:")); rest != "" {
				summaryLines = append(summaryLines, rest)
			}
		case strings.HasPrefix(trimmed, "TOPICS:"):
			inSummary = false
			draft.Topics = splitList(strings.TrimPrefix(trimmed, "TOPICS:"), ",")
		case strings.HasPrefix(trimmed, "ENTITIES:"):
			inSummary = false
			draft.Entities = splitList(strings.TrimPrefix(trimmed, "ENTITIES:"), ",")
		case strings.HasPrefix(trimmed, "DECISIONS:"):
			inSummary = false
			draft.Decisions = splitList(strings.TrimPrefix(trimmed, "DECISIONS:"), ";")
		case inSummary && trimmed != "":
			summaryLines = append(summaryLines, trimmed)
		}
	}

	draft.Text = strings.Join(summaryLines, " ")
	if draft.Text == "" {
		return nil, fmt.Errorf("parse summary: missing SUMMARY section")
	}
	return draft, nil
}

func splitList(s, sep string) []string {
	var items []string
	for _, item := range strings.Split(s, sep) {
		item = strings.TrimSpace(item)
		if item == "" || strings.EqualFold(item, "NONE") {
			continue
		}
		items = append(items, item)
	}
	return items
}
