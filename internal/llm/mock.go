package llm

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// Mock is a scripted Adapter for tests. Responses are keyed by input text;
// unscripted calls fall back to cheap heuristics so pipeline tests stay
// short. Every invocation is recorded so tests can assert adapter isolation.
type Mock struct {
	mu sync.Mutex

	// Units maps chunk text to scripted semantic units.
	Units map[string][]SemanticUnit

	// Entities maps text to scripted entity names.
	Entities map[string][]string

	// Relationships maps unit text to scripted relationships.
	Relationships map[string][]Relationship

	// CommunityInsights is returned by SummarizeCommunity when set.
	CommunityInsights []Insight

	// Err, when set, is returned by every call.
	Err error

	// Block makes each call wait until the context is done, to exercise
	// cancellation paths.
	Block bool

	calls []string
}

// NewMock creates an empty scripted adapter.
func NewMock() *Mock {
	return &Mock{
		Units:         make(map[string][]SemanticUnit),
		Entities:      make(map[string][]string),
		Relationships: make(map[string][]Relationship),
	}
}

// Calls returns the recorded invocation names in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the total number of adapter invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *Mock) record(ctx context.Context, name string) error {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	err := m.Err
	block := m.Block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return fault.FromContext(ctx)
	}
	if err != nil {
		return err
	}
	if ctxErr := fault.FromContext(ctx); ctxErr != nil {
		return ctxErr
	}
	return nil
}

// ExtractSemanticUnits implements Adapter.
func (m *Mock) ExtractSemanticUnits(ctx context.Context, text string) ([]SemanticUnit, error) {
	if err := m.record(ctx, "extract_semantic_units"); err != nil {
		return nil, err
	}
	if units, ok := m.Units[text]; ok {
		return units, nil
	}
	// Fallback: one unit per sentence.
	var units []SemanticUnit
	for _, sentence := range splitSentences(text) {
		units = append(units, SemanticUnit{Text: sentence, Summary: sentence})
	}
	return units, nil
}

// ExtractEntities implements Adapter.
func (m *Mock) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	if err := m.record(ctx, "extract_entities"); err != nil {
		return nil, err
	}
	if names, ok := m.Entities[text]; ok {
		return names, nil
	}
	return capitalisedPhrases(text), nil
}

// ExtractRelationships implements Adapter.
func (m *Mock) ExtractRelationships(ctx context.Context, unitText string, entityNames []string) ([]Relationship, error) {
	if err := m.record(ctx, "extract_relationships"); err != nil {
		return nil, err
	}
	if rels, ok := m.Relationships[unitText]; ok {
		return rels, nil
	}
	if len(entityNames) >= 2 {
		return []Relationship{{Description: unitText, Source: entityNames[0], Target: entityNames[1]}}, nil
	}
	return nil, nil
}

// SummarizeEntity implements Adapter.
func (m *Mock) SummarizeEntity(ctx context.Context, entityLabel string, units, relationships []string) (string, error) {
	if err := m.record(ctx, "summarise_entity"); err != nil {
		return "", err
	}
	return entityLabel + ": " + strings.Join(units, " "), nil
}

// SummarizeCommunity implements Adapter.
func (m *Mock) SummarizeCommunity(ctx context.Context, memberContents []string) ([]Insight, error) {
	if err := m.record(ctx, "summarise_community"); err != nil {
		return nil, err
	}
	if m.CommunityInsights != nil {
		return m.CommunityInsights, nil
	}
	return []Insight{{Title: "community insight", Content: strings.Join(memberContents, " "), Keywords: capitalisedPhrases(strings.Join(memberContents, " "))}}, nil
}

// IdentifySemanticBoundaries implements Adapter.
func (m *Mock) IdentifySemanticBoundaries(ctx context.Context, text string) ([]string, error) {
	if err := m.record(ctx, "identify_semantic_boundaries"); err != nil {
		return nil, err
	}
	return splitSentences(text), nil
}

// Summarize implements Adapter.
func (m *Mock) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	if err := m.record(ctx, "summarise"); err != nil {
		return "", err
	}
	// Truncate at a word boundary to roughly maxTokens worth of text
	// (four characters per token, matching the transformer's estimator).
	budget := maxTokens * 4
	if len(text) <= budget {
		return text, nil
	}
	var b strings.Builder
	for _, w := range strings.Fields(text) {
		if b.Len()+len(w)+1 > budget-4 {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String(), nil
}

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]?`)

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var phraseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

func capitalisedPhrases(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i, m := range phraseRe.FindAllString(text, -1) {
		// Skip a sentence-leading word unless it reappears capitalised.
		if i == 0 && strings.Index(text, m) == 0 && strings.Count(text, m) == 1 && !strings.Contains(m, " ") {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

var _ Adapter = (*Mock)(nil)
