package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// Config configures the langchaingo-backed adapter.
type Config struct {
	// MaxConcurrency caps in-flight model calls per process.
	MaxConcurrency int

	// RequestsPerMinute feeds the shared rate limiter.
	RequestsPerMinute float64

	// Burst allows short request bursts above the steady rate.
	Burst int

	// CallTimeout bounds one model call.
	CallTimeout time.Duration

	// Temperature for generation; extraction wants it low.
	Temperature float64
}

// DefaultConfig returns the process defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    4,
		RequestsPerMinute: 50,
		Burst:             5,
		CallTimeout:       60 * time.Second,
		Temperature:       0.2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fault.Invalid("llm max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.RequestsPerMinute <= 0 {
		return fault.Invalid("llm requests per minute must be positive, got %g", c.RequestsPerMinute)
	}
	if c.CallTimeout <= 0 {
		return fault.Invalid("llm call timeout must be positive")
	}
	return nil
}

// LangchainAdapter implements Adapter over any langchaingo llms.Model
// (OpenAI-compatible endpoints, Anthropic, Ollama, ...).
type LangchainAdapter struct {
	model   llms.Model
	cfg     Config
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	policy  fault.RetryPolicy
}

// NewLangchainAdapter wraps a model.
func NewLangchainAdapter(model llms.Model, cfg Config) (*LangchainAdapter, error) {
	if model == nil {
		return nil, fault.Invalid("llm model is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LangchainAdapter{
		model:   model,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), cfg.Burst),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		policy:  fault.DefaultRetryPolicy(),
	}, nil
}

const unitsPrompt = `Decompose the following text into independent semantic units.
Each unit states exactly one fact or event.
Respond ONLY with a JSON array of objects with "text" and "summary" fields.

Text:
%s`

const entitiesPrompt = `List the named entities mentioned in the following text.
Respond ONLY with a JSON array of strings, most important first.

Text:
%s`

const relationshipsPrompt = `Given this text and these entity names, list the directed relationships between the entities.
Entities: %s
Respond ONLY with a JSON array of objects with "description", "source" and "target" fields, where source and target are entity names from the list.

Text:
%s`

const entitySummaryPrompt = `Write a concise factual summary of the entity %q from the evidence below.
Respond with plain text only.

Facts:
%s

Relationships:
%s`

const communityPrompt = `The following passages belong to one topical community.
Derive the key insights the community expresses.
Respond ONLY with a JSON array of objects with "title", "content" and "keywords" fields.

Passages:
%s`

const boundariesPrompt = `Split the following text into topically coherent segments.
Respond ONLY with a JSON array of strings, each a contiguous segment, in order.

Text:
%s`

const summarizePrompt = `Summarise the following text in at most %d tokens, keeping the most important facts.
Respond with plain text only.

Text:
%s`

// ExtractSemanticUnits implements Adapter.
func (a *LangchainAdapter) ExtractSemanticUnits(ctx context.Context, text string) ([]SemanticUnit, error) {
	var units []SemanticUnit
	err := a.generateJSON(ctx, fmt.Sprintf(unitsPrompt, text), &units)
	return units, err
}

// ExtractEntities implements Adapter.
func (a *LangchainAdapter) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	var names []string
	err := a.generateJSON(ctx, fmt.Sprintf(entitiesPrompt, text), &names)
	return names, err
}

// ExtractRelationships implements Adapter.
func (a *LangchainAdapter) ExtractRelationships(ctx context.Context, unitText string, entityNames []string) ([]Relationship, error) {
	var rels []Relationship
	prompt := fmt.Sprintf(relationshipsPrompt, strings.Join(entityNames, ", "), unitText)
	err := a.generateJSON(ctx, prompt, &rels)
	return rels, err
}

// SummarizeEntity implements Adapter.
func (a *LangchainAdapter) SummarizeEntity(ctx context.Context, entityLabel string, units, relationships []string) (string, error) {
	prompt := fmt.Sprintf(entitySummaryPrompt, entityLabel, strings.Join(units, "\n- "), strings.Join(relationships, "\n- "))
	return a.generate(ctx, prompt)
}

// SummarizeCommunity implements Adapter.
func (a *LangchainAdapter) SummarizeCommunity(ctx context.Context, memberContents []string) ([]Insight, error) {
	var insights []Insight
	err := a.generateJSON(ctx, fmt.Sprintf(communityPrompt, strings.Join(memberContents, "\n---\n")), &insights)
	return insights, err
}

// IdentifySemanticBoundaries implements Adapter.
func (a *LangchainAdapter) IdentifySemanticBoundaries(ctx context.Context, text string) ([]string, error) {
	var segments []string
	err := a.generateJSON(ctx, fmt.Sprintf(boundariesPrompt, text), &segments)
	return segments, err
}

// Summarize implements Adapter.
func (a *LangchainAdapter) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	return a.generate(ctx, fmt.Sprintf(summarizePrompt, maxTokens, text))
}

// generate performs one rate-limited, bounded-concurrency model call with
// retry on transient failure.
func (a *LangchainAdapter) generate(ctx context.Context, prompt string) (string, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return "", fault.FromContext(ctx)
	}
	defer a.sem.Release(1)

	var out string
	err := fault.Retry(ctx, a.policy, func(ctx context.Context) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return fault.FromContext(ctx)
		}
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()

		text, err := llms.GenerateFromSinglePrompt(callCtx, a.model, prompt,
			llms.WithTemperature(a.cfg.Temperature))
		if err != nil {
			if ctxErr := fault.FromContext(ctx); ctxErr != nil {
				return ctxErr
			}
			return fault.Unavailable(err, "llm call failed")
		}
		out = text
		return nil
	})
	return out, err
}

func (a *LangchainAdapter) generateJSON(ctx context.Context, prompt string, v any) error {
	text, err := a.generate(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(text)), v); err != nil {
		return fault.Unavailable(err, "llm returned malformed JSON")
	}
	return nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ Adapter = (*LangchainAdapter)(nil)
