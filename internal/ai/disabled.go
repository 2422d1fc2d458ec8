package ai

import "context"

// Disabled is the Analyzer used when no API key is configured. Every call
// succeeds with an empty result so the pipeline keeps flowing; callers check
// Enabled to pick degraded paths where one exists.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) ExtractTodos(ctx context.Context, req TodoRequest) ([]TodoCandidate, error) {
	return nil, nil
}

func (Disabled) ExtractTopic(ctx context.Context, req TopicRequest) (*TopicResult, error) {
	return nil, nil
}

func (Disabled) ExtractGoals(ctx context.Context, req GoalRequest) ([]GoalCandidate, error) {
	return nil, nil
}

func (Disabled) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (Disabled) DiscoverPatterns(ctx context.Context, digest InteractionDigest) (*PatternWeights, error) {
	return nil, nil
}
