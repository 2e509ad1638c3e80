package config

import (
	"fmt"
	"os"
	"time"

	"github.com/perso-labs/recall/internal/models"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2m".
type Duration time.Duration

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Policy holds the scoring and consolidation knobs. The numbers are policy,
// not code: deployments tune them via a YAML file rather than a rebuild.
type Policy struct {
	Reinforcement ReinforcementPolicy `yaml:"reinforcement"`
	Decay         DecayPolicy         `yaml:"decay"`
	Search        SearchPolicy        `yaml:"search"`
	Consolidation ConsolidationPolicy `yaml:"consolidation"`
	Retention     RetentionPolicy     `yaml:"retention"`
	Assemble      AssemblePolicy      `yaml:"assemble"`
}

// ReinforcementPolicy controls dedup-by-reinforcement.
type ReinforcementPolicy struct {
	// SimilarityThreshold is the cosine similarity above which a candidate
	// reinforces an existing record instead of creating a new one.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// ImportanceBump is added to importance on reinforcement, capped at 1.
	ImportanceBump float64 `yaml:"importance_bump"`
	// AccessBump is added to importance on retrieval access, capped at 1.
	AccessBump float64 `yaml:"access_bump"`
}

// DecayPolicy holds per-kind exponential decay rates (per day).
type DecayPolicy struct {
	LambdaPerDay map[models.MemoryKind]float64 `yaml:"lambda_per_day"`
}

// LambdaFor returns the decay rate for a kind, falling back to the fact rate.
func (d DecayPolicy) LambdaFor(kind models.MemoryKind) float64 {
	if l, ok := d.LambdaPerDay[kind]; ok {
		return l
	}
	return d.LambdaPerDay[models.KindFact]
}

// SearchPolicy holds composite-score weights and result sizing.
type SearchPolicy struct {
	SimilarityWeight float64 `yaml:"similarity_weight"`
	RelevanceWeight  float64 `yaml:"relevance_weight"`
	ImportanceWeight float64 `yaml:"importance_weight"`
	TopK             int     `yaml:"top_k"`
}

// ConsolidationPolicy controls when raw turns are compressed into summaries.
type ConsolidationPolicy struct {
	// TurnThreshold is the unsummarized backlog size that triggers
	// consolidation; each consolidation consumes exactly this many turns.
	TurnThreshold int `yaml:"turn_threshold"`
	// LeaseTTL bounds how long a crashed consolidator blocks an owner.
	LeaseTTL Duration `yaml:"lease_ttl"`
}

// RetentionPolicy controls soft-retirement of stale memories.
type RetentionPolicy struct {
	// RelevanceFloor below which a memory becomes a retirement candidate.
	RelevanceFloor float64 `yaml:"relevance_floor"`
	// Window is how long relevance must stay below the floor (measured from
	// last access) before retirement.
	Window Duration `yaml:"window"`
}

// AssemblePolicy sizes the assembled context.
type AssemblePolicy struct {
	// RecentTurns is the fixed last-K raw turn window.
	RecentTurns int `yaml:"recent_turns"`
	// MemoryLimit is how many ranked memories are retrieved for assembly.
	MemoryLimit int `yaml:"memory_limit"`
}

// DefaultPolicy returns the built-in knob values. Decisions and preferences
// decay slower than casual entity mentions.
func DefaultPolicy() Policy {
	return Policy{
		Reinforcement: ReinforcementPolicy{
			SimilarityThreshold: 0.92,
			ImportanceBump:      0.05,
			AccessBump:          0.01,
		},
		Decay: DecayPolicy{
			LambdaPerDay: map[models.MemoryKind]float64{
				models.KindFact:          0.02,
				models.KindPreference:    0.005,
				models.KindDecision:      0.005,
				models.KindInsight:       0.01,
				models.KindEntityMention: 0.05,
			},
		},
		Search: SearchPolicy{
			SimilarityWeight: 0.5,
			RelevanceWeight:  0.3,
			ImportanceWeight: 0.2,
			TopK:             8,
		},
		Consolidation: ConsolidationPolicy{
			TurnThreshold: 50,
			LeaseTTL:      Duration(2 * time.Minute),
		},
		Retention: RetentionPolicy{
			RelevanceFloor: 0.05,
			Window:         Duration(30 * 24 * time.Hour),
		},
		Assemble: AssemblePolicy{
			RecentTurns: 6,
			MemoryLimit: 8,
		},
	}
}

// LoadPolicy reads a policy file, overlaying it on the defaults. An empty
// path returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects knob values the engine's invariants cannot hold under.
func (p Policy) Validate() error {
	if p.Reinforcement.SimilarityThreshold <= 0 || p.Reinforcement.SimilarityThreshold > 1 {
		return fmt.Errorf("reinforcement.similarity_threshold must be in (0,1]")
	}
	if p.Reinforcement.ImportanceBump < 0 || p.Reinforcement.AccessBump < 0 {
		return fmt.Errorf("reinforcement bumps must be non-negative")
	}
	for kind, l := range p.Decay.LambdaPerDay {
		if !kind.Valid() {
			return fmt.Errorf("decay.lambda_per_day: unknown kind %q", kind)
		}
		if l < 0 {
			return fmt.Errorf("decay.lambda_per_day.%s must be non-negative", kind)
		}
	}
	weights := p.Search.SimilarityWeight + p.Search.RelevanceWeight + p.Search.ImportanceWeight
	if weights <= 0 {
		return fmt.Errorf("search weights must sum to a positive value")
	}
	if p.Consolidation.TurnThreshold <= 0 {
		return fmt.Errorf("consolidation.turn_threshold must be positive")
	}
	if p.Consolidation.LeaseTTL <= 0 {
		return fmt.Errorf("consolidation.lease_ttl must be positive")
	}
	if p.Assemble.RecentTurns <= 0 {
		return fmt.Errorf("assemble.recent_turns must be positive")
	}
	return nil
}
