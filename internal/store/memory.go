package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a threadsafe in-memory Store for tests and local runs.
// All reads return clones so callers can't mutate shared state.
type MemoryStore struct {
	mu           sync.RWMutex
	messages     map[string]*Message
	importance   map[string]*ContactImportance // key: userID+"/"+contactID
	preferences  map[string]*UserPreference
	interactions []*InteractionEvent
	todos        []*TodoItem
	topics       map[string]*ConversationTopic
	embeddings   map[string]*MessageEmbedding
	goals        []*Goal
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:    make(map[string]*Message),
		importance:  make(map[string]*ContactImportance),
		preferences: make(map[string]*UserPreference),
		topics:      make(map[string]*ConversationTopic),
		embeddings:  make(map[string]*MessageEmbedding),
		now:         time.Now,
	}
}

func importanceKey(userID, contactID string) string { return userID + "/" + contactID }

func (s *MemoryStore) CreateMessage(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = m.CreatedAt
	}
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *MemoryStore) UpdateMessagePriority(ctx context.Context, id string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.Priority = priority
	return nil
}

func (s *MemoryStore) MarkMessageRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.IsRead = true
	return nil
}

func (s *MemoryStore) ListRecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Message
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListMessagesFromContact(ctx context.Context, userID, contactID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Message
	for _, m := range s.messages {
		if m.UserID == userID && m.FromContactID == contactID {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetContactImportance(ctx context.Context, userID, contactID string) (*ContactImportance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, ok := s.importance[importanceKey(userID, contactID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ci
	return &cp, nil
}

func (s *MemoryStore) AdjustContactImportance(ctx context.Context, userID, contactID string, adj ImportanceAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := importanceKey(userID, contactID)
	ci, ok := s.importance[key]
	if !ok {
		ci = &ContactImportance{
			UserID:          userID,
			ContactID:       contactID,
			ImportanceScore: ClampImportance(adj.CreateScore),
		}
		s.importance[key] = ci
	} else {
		ci.ImportanceScore = ClampImportance(ci.ImportanceScore + adj.Delta)
	}
	ci.InteractionCount += adj.CountDelta
	if adj.TouchInteraction {
		ci.LastInteraction = s.now()
	}
	ci.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetPreferences(ctx context.Context, userID string) (*UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePreference(p), nil
}

func (s *MemoryStore) getOrCreatePrefsLocked(userID string) *UserPreference {
	p, ok := s.preferences[userID]
	if !ok {
		p = &UserPreference{
			UserID:          userID,
			KeywordWeights:  make(map[string]float64),
			PlatformWeights: make(map[string]float64),
			SenderWeights:   make(map[string]float64),
		}
		s.preferences[userID] = p
	}
	return p
}

func (s *MemoryStore) AdjustPreferenceWeights(ctx context.Context, userID string, keywordDeltas, platformDeltas map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreatePrefsLocked(userID)
	for k, d := range keywordDeltas {
		cur, ok := p.KeywordWeights[k]
		if !ok {
			cur = 0.5
		}
		p.KeywordWeights[k] = ClampWeight(cur + d)
	}
	for k, d := range platformDeltas {
		cur, ok := p.PlatformWeights[k]
		if !ok {
			cur = 0.5
		}
		p.PlatformWeights[k] = ClampWeight(cur + d)
	}
	return nil
}

func (s *MemoryStore) ReplaceLearnedWeights(ctx context.Context, userID string, sender, keyword, platform map[string]float64, patterns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreatePrefsLocked(userID)
	p.SenderWeights = clampMap(sender)
	p.KeywordWeights = clampMap(keyword)
	p.PlatformWeights = clampMap(platform)
	p.Patterns = append([]string(nil), patterns...)
	return nil
}

func (s *MemoryStore) RecordLearningRun(ctx context.Context, userID string, samples int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreatePrefsLocked(userID)
	p.LastLearningRun = at
	p.SamplesAnalyzed += samples
	return nil
}

func (s *MemoryStore) AppendInteraction(ctx context.Context, ev *InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	s.interactions = append(s.interactions, cloneInteraction(ev))
	return nil
}

func (s *MemoryStore) ListInteractionsSince(ctx context.Context, userID string, since time.Time, limit int) ([]*InteractionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*InteractionEvent
	for _, ev := range s.interactions {
		if ev.UserID == userID && !ev.Timestamp.Before(since) {
			out = append(out, cloneInteraction(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateTodo(ctx context.Context, t *TodoItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	cp := *t
	s.todos = append(s.todos, &cp)
	return nil
}

func (s *MemoryStore) ListTodos(ctx context.Context, userID string) ([]*TodoItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TodoItem
	for _, t := range s.todos {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindTopic(ctx context.Context, userID, name string) (*ConversationTopic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.topics {
		if t.UserID == userID && t.Name == name {
			return cloneTopic(t), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateTopic(ctx context.Context, t *ConversationTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.FirstSeenAt.IsZero() {
		t.FirstSeenAt = s.now()
	}
	if t.LastActivityAt.IsZero() {
		t.LastActivityAt = t.FirstSeenAt
	}
	s.topics[t.ID] = cloneTopic(t)
	return nil
}

func (s *MemoryStore) TouchTopic(ctx context.Context, id string, importance int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return ErrNotFound
	}
	if importance > t.Importance {
		t.Importance = importance
	}
	t.MessageCount++
	t.LastActivityAt = at
	return nil
}

func (s *MemoryStore) UpsertEmbedding(ctx context.Context, e *MessageEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.Vector = append([]float32(nil), e.Vector...)
	cp.UpdatedAt = s.now()
	s.embeddings[e.MessageID] = &cp
	return nil
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, messageID string) (*MessageEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	cp.Vector = append([]float32(nil), e.Vector...)
	return &cp, nil
}

func (s *MemoryStore) ListEmbeddings(ctx context.Context, userID string) ([]*MessageEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*MessageEmbedding
	for _, e := range s.embeddings {
		if e.UserID == userID {
			cp := *e
			cp.Vector = append([]float32(nil), e.Vector...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateGoal(ctx context.Context, g *Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	cp := *g
	cp.Keywords = append([]string(nil), g.Keywords...)
	s.goals = append(s.goals, &cp)
	return nil
}

func (s *MemoryStore) ListGoals(ctx context.Context, userID string) ([]*Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Goal
	for _, g := range s.goals {
		if g.UserID == userID {
			cp := *g
			cp.Keywords = append([]string(nil), g.Keywords...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, m := range s.messages {
		seen[m.UserID] = true
	}
	for u := range s.preferences {
		seen[u] = true
	}
	for _, ev := range s.interactions {
		seen[ev.UserID] = true
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func cloneMessage(m *Message) *Message {
	cp := *m
	return &cp
}

func clonePreference(p *UserPreference) *UserPreference {
	cp := *p
	cp.KeywordWeights = copyMap(p.KeywordWeights)
	cp.PlatformWeights = copyMap(p.PlatformWeights)
	cp.SenderWeights = copyMap(p.SenderWeights)
	cp.Patterns = append([]string(nil), p.Patterns...)
	return &cp
}

func cloneInteraction(ev *InteractionEvent) *InteractionEvent {
	cp := *ev
	if ev.Metadata != nil {
		cp.Metadata = make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneTopic(t *ConversationTopic) *ConversationTopic {
	cp := *t
	cp.Keywords = append([]string(nil), t.Keywords...)
	return &cp
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clampMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = ClampWeight(v)
	}
	return out
}
