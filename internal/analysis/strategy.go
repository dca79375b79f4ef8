package analysis

import (
	"context"
	"fmt"
	"strings"

	"labreport/internal/tools"
	"labreport/internal/types"
)

// Strategy turns a prompt into analysis text.
type Strategy interface {
	Invoke(ctx context.Context, prompt Prompt) (string, error)
}

// StrategyFactory builds the strategies used by the tiers.
type StrategyFactory interface {
	// NewPrimary builds the tool-using strategy for subject.
	NewPrimary(subject *types.Subject) (Strategy, error)
	// Direct returns the single-call strategy used by the fallback tiers.
	Direct() Strategy
}

// LLMStrategyFactory builds strategies over one shared LLM client.
type LLMStrategyFactory struct {
	Client types.LLMClient
	// ClientErr is the error from building Client, reported when the primary
	// strategy is constructed without one.
	ClientErr     error
	Tools         *tools.Registry
	MaxIterations int
}

// NewPrimary returns an AgentStrategy.
func (f *LLMStrategyFactory) NewPrimary(subject *types.Subject) (Strategy, error) {
	switch {
	case f.ClientErr != nil:
		return nil, fmt.Errorf("%w: llm client: %v", ErrStrategyConstruction, f.ClientErr)
	case f.Client == nil:
		return nil, fmt.Errorf("%w: no llm client configured", ErrStrategyConstruction)
	case f.Tools == nil || f.Tools.Count() == 0:
		return nil, fmt.Errorf("%w: no tools registered", ErrStrategyConstruction)
	case f.MaxIterations <= 0:
		return nil, fmt.Errorf("%w: iteration budget must be positive, got %d", ErrStrategyConstruction, f.MaxIterations)
	}
	return &AgentStrategy{
		client:        f.Client,
		registry:      f.Tools,
		maxIterations: f.MaxIterations,
		subjectID:     subject.ID,
	}, nil
}

// Direct returns a DirectStrategy over the shared client.
func (f *LLMStrategyFactory) Direct() Strategy {
	return &DirectStrategy{client: f.Client, clientErr: f.ClientErr}
}

// DirectStrategy makes one completion call with no tools.
type DirectStrategy struct {
	client    types.LLMClient
	clientErr error
}

// NewDirectStrategy returns a DirectStrategy over client.
func NewDirectStrategy(client types.LLMClient) *DirectStrategy {
	return &DirectStrategy{client: client}
}

// Invoke implements Strategy.
func (s *DirectStrategy) Invoke(ctx context.Context, p Prompt) (string, error) {
	if s.clientErr != nil {
		return "", fmt.Errorf("%w: llm client: %v", ErrStrategyInvocation, s.clientErr)
	}
	if s.client == nil {
		return "", fmt.Errorf("%w: no llm client configured", ErrStrategyInvocation)
	}
	text, err := s.client.CompleteWithSystem(ctx, p.System, p.User)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStrategyInvocation, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrStrategyInvocation)
	}
	return text, nil
}
