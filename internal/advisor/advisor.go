// Package advisor layers optional model-generated text over a computed
// CHA₂DS₂-VASc score: a one-sentence anticoagulation recommendation and an
// answer to a stroke-risk question over the reference table.
//
// Every call here happens after the score is known. Callers treat errors as a
// missing augmentation and fall back to GuidelineRecommendation or
// LookupAnswer.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/score"
)

const (
	DefaultModel    = "gpt-4"
	DefaultCacheTTL = 24 * time.Hour

	SourceLLM       = "llm"
	SourceGuideline = "guideline"
	SourceTable     = "table"
)

// SupportedModels are the models a caller may pick per request. The model the
// Advisor was built with is always accepted as well.
var SupportedModels = []string{"gpt-4", "gpt-3.5-turbo"}

var (
	// ErrNotConfigured is returned when no model credentials were supplied.
	ErrNotConfigured = errors.New("advisor: no language model configured")
	// ErrUnsupportedModel is returned by ForModel for a model outside the allowlist.
	ErrUnsupportedModel = errors.New("advisor: unsupported model")
)

// Answer is a piece of generated text and where it came from.
type Answer struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Model  string `json:"model,omitempty"`
	Cached bool   `json:"cached"`
}

type Advisor struct {
	chat     ChatClient
	cache    Cache
	cacheTTL time.Duration
	model    string
	table    *risktable.Table
	logger   *zap.Logger
}

type Option func(*Advisor)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(a *Advisor) {
		a.cache = c
		if ttl > 0 {
			a.cacheTTL = ttl
		}
	}
}

func WithModel(model string) Option {
	return func(a *Advisor) {
		if model != "" {
			a.model = model
		}
	}
}

func WithTable(t *risktable.Table) Option {
	return func(a *Advisor) { a.table = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Advisor) { a.logger = l }
}

// New builds an Advisor. A nil chat client yields an Advisor whose calls all
// return ErrNotConfigured.
func New(chat ChatClient, opts ...Option) *Advisor {
	a := &Advisor{
		chat:     chat,
		cacheTTL: DefaultCacheTTL,
		model:    DefaultModel,
		table:    risktable.Default(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Advisor) Enabled() bool { return a != nil && a.chat != nil }

func (a *Advisor) Model() string { return a.model }

// Models lists the models ForModel accepts, configured model first.
func (a *Advisor) Models() []string {
	out := []string{a.model}
	for _, m := range SupportedModels {
		if m != a.model {
			out = append(out, m)
		}
	}
	return out
}

// ForModel returns an Advisor that sends prompts to model and shares this
// one's client, cache and table. An empty model returns a unchanged.
func (a *Advisor) ForModel(model string) (*Advisor, error) {
	if model == "" || model == a.model {
		return a, nil
	}
	for _, m := range SupportedModels {
		if m == model {
			clone := *a
			clone.model = model
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
}

// Recommend asks the model whether anticoagulation is recommended for the
// given score and sex label.
func (a *Advisor) Recommend(ctx context.Context, n int, sex string) (Answer, error) {
	if !a.Enabled() {
		return Answer{}, ErrNotConfigured
	}
	prompt, err := RenderRecommendationPrompt(n, sex)
	if err != nil {
		return Answer{}, err
	}
	female, _ := score.ParseSex(sex)
	key := fmt.Sprintf("chadsvasc:recommendation:%s:%s:%d:%s", TemplateVersion, a.model, n, score.SexLabel(female))
	return a.complete(ctx, key, prompt)
}

// AskRisk asks the model for the annual risk of the given stroke type at a
// score, using the reference table as its only context.
func (a *Advisor) AskRisk(ctx context.Context, n int, st risktable.StrokeType) (Answer, error) {
	if !a.Enabled() {
		return Answer{}, ErrNotConfigured
	}
	if _, err := a.table.Lookup(n, st); err != nil {
		return Answer{}, err
	}
	prompt, err := RenderRiskQuestion(a.table, n, st)
	if err != nil {
		return Answer{}, err
	}
	key := fmt.Sprintf("chadsvasc:risk:%s:%d:%s", a.model, n, st)
	return a.complete(ctx, key, prompt)
}

func (a *Advisor) complete(ctx context.Context, key, prompt string) (Answer, error) {
	if a.cache != nil {
		cached, err := a.cache.Get(ctx, key)
		switch {
		case err == nil:
			return Answer{Text: cached, Source: SourceLLM, Model: a.model, Cached: true}, nil
		case !errors.Is(err, ErrCacheMiss):
			a.logger.Warn("advisor cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	text, err := a.chat.Complete(ctx, a.model, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("advisor: %w", err)
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, text, a.cacheTTL); err != nil {
			a.logger.Warn("advisor cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return Answer{Text: text, Source: SourceLLM, Model: a.model}, nil
}
