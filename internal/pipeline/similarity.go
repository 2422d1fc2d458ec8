package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// SimilarMessage is one neighbor from embedding space.
type SimilarMessage struct {
	MessageID  string  `json:"message_id"`
	Similarity float64 `json:"similarity"`
}

// Cosine returns the cosine similarity of two vectors, 0 when either has no
// magnitude or the dimensions disagree.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// FindSimilar ranks the user's other messages by embedding similarity to
// messageID. Messages without a stored embedding are invisible here.
func (p *Pipeline) FindSimilar(ctx context.Context, messageID string, limit int) ([]SimilarMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	ref, err := p.store.GetEmbedding(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading reference embedding: %w", err)
	}
	all, err := p.store.ListEmbeddings(ctx, ref.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}

	out := make([]SimilarMessage, 0, len(all))
	for _, e := range all {
		if e.MessageID == messageID {
			continue
		}
		out = append(out, SimilarMessage{
			MessageID:  e.MessageID,
			Similarity: Cosine(ref.Vector, e.Vector),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].MessageID < out[j].MessageID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
