package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/perso-labs/recall/internal/models"
)

const extractSystemPrompt = `You are a memory extraction specialist for a long-running assistant. From the given conversation turn, extract durable facts worth remembering across sessions.

Memory kinds: fact, preference, decision, insight, entity_mention

Output format (one memory per line, nothing else):
MEMORY|kind|importance|content|entity1,entity2

Guidelines:
- importance is a number between 0.0 and 1.0 reflecting how much this matters long-term
- content is a single self-contained sentence; never use the | character inside it
- entities is a comma-separated list of entities the memory relates to, or empty
- Extract only durable information: skip greetings, fillers, and transient chatter
- Output NONE if the turn contains nothing worth remembering`

// ExtractMemories asks the model for memory candidates found in a
// conversation turn. The raw response is parsed with ParseCandidates.
func (m *Model) ExtractMemories(ctx context.Context, role, content string) (string, error) {
	userPrompt := fmt.Sprintf(`Conversation turn (%s):
%s

Extracted memories:`, role, content)

	return m.GenerateWithSystem(ctx, extractSystemPrompt, userPrompt)
}

// ParseCandidates parses model output in the MEMORY|... line format.
// Malformed lines are dropped rather than failing the whole extraction;
// one bad line must not cost the good ones.
func ParseCandidates(raw string) []models.CandidateMemory {
	var candidates []models.CandidateMemory

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "MEMORY|") {
			continue
		}

		parts := strings.SplitN(line, "|", 5)
		if len(parts) < 4 {
			continue
		}

		kind := models.MemoryKind(strings.TrimSpace(parts[1]))
		if !kind.Valid() {
			continue
		}

		importance, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			continue
		}
		if importance < 0 {
			importance = 0
		}
		if importance > 1 {
			importance = 1
		}

		content := strings.TrimSpace(parts[3])
		if content == "" {
			continue
		}

		var entities []string
		if len(parts) == 5 {
			for _, e := range strings.Split(parts[4], ",") {
				if e = strings.TrimSpace(e); e != "" {
					entities = append(entities, e)
				}
			}
		}

		candidates = append(candidates, models.CandidateMemory{
			Kind:            kind,
			Importance:      importance,
			Content:         content,
			RelatedEntities: entities,
		})
	}

	return candidates
}
