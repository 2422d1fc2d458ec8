package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store on a pgxpool connection pool. Contact
// importance adjustments are single INSERT..ON CONFLICT statements with the
// clamping done in SQL; preference weight merges take a row lock so
// concurrent learners and trackers cannot lose writes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			from_contact_id TEXT NOT NULL DEFAULT '',
			from_addr TEXT NOT NULL DEFAULT '',
			from_name TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			thread_id TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			snippet TEXT NOT NULL DEFAULT '',
			priority INT NOT NULL DEFAULT 50,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			received_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_received ON messages (user_id, received_at DESC)`,
		`CREATE TABLE IF NOT EXISTS contact_importance (
			user_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			importance_score DOUBLE PRECISION NOT NULL DEFAULT 5,
			interaction_count INT NOT NULL DEFAULT 0,
			last_interaction TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, contact_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			keyword_weights JSONB NOT NULL DEFAULT '{}',
			platform_weights JSONB NOT NULL DEFAULT '{}',
			sender_weights JSONB NOT NULL DEFAULT '{}',
			patterns JSONB NOT NULL DEFAULT '[]',
			last_learning_run TIMESTAMPTZ,
			samples_analyzed INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS interaction_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			contact_id TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			ts TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_ts ON interaction_events (user_id, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS todo_items (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			priority INT NOT NULL DEFAULT 5,
			due_date TEXT NOT NULL DEFAULT '',
			extracted_from TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_topics (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			importance INT NOT NULL DEFAULT 0,
			keywords JSONB NOT NULL DEFAULT '[]',
			sentiment TEXT NOT NULL DEFAULT '',
			message_count INT NOT NULL DEFAULT 1,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS message_embeddings (
			message_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			vector JSONB NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS goals (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			goal TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			priority INT NOT NULL DEFAULT 5,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			keywords JSONB NOT NULL DEFAULT '[]',
			evidence TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = m.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, user_id, platform, from_contact_id, from_addr, from_name,
			external_id, thread_id, subject, body, snippet, priority, is_read, received_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.UserID, m.Platform, m.FromContactID, m.From, m.FromName,
		m.ExternalID, m.ThreadID, m.Subject, m.Body, m.Snippet, m.Priority, m.IsRead, m.ReceivedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

const messageColumns = `id, user_id, platform, from_contact_id, from_addr, from_name,
	external_id, thread_id, subject, body, snippet, priority, is_read, received_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.UserID, &m.Platform, &m.FromContactID, &m.From, &m.FromName,
		&m.ExternalID, &m.ThreadID, &m.Subject, &m.Body, &m.Snippet, &m.Priority, &m.IsRead,
		&m.ReceivedAt, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	return scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (s *PostgresStore) UpdateMessagePriority(ctx context.Context, id string, priority int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET priority = $2 WHERE id = $1`, id, priority)
	if err != nil {
		return fmt.Errorf("updating message priority: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkMessageRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking message read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) listMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" (<=0) to LIMIT NULL.
func sqlLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func (s *PostgresStore) ListRecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE user_id = $1
		 ORDER BY received_at DESC LIMIT $2`, userID, sqlLimit(limit))
}

func (s *PostgresStore) ListMessagesFromContact(ctx context.Context, userID, contactID string, limit int) ([]*Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE user_id = $1 AND from_contact_id = $2
		 ORDER BY received_at DESC LIMIT $3`, userID, contactID, sqlLimit(limit))
}

func (s *PostgresStore) GetContactImportance(ctx context.Context, userID, contactID string) (*ContactImportance, error) {
	var ci ContactImportance
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, contact_id, importance_score, interaction_count, last_interaction, updated_at
		 FROM contact_importance WHERE user_id = $1 AND contact_id = $2`, userID, contactID).
		Scan(&ci.UserID, &ci.ContactID, &ci.ImportanceScore, &ci.InteractionCount, &last, &ci.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading contact importance: %w", err)
	}
	if last != nil {
		ci.LastInteraction = *last
	}
	return &ci, nil
}

func (s *PostgresStore) AdjustContactImportance(ctx context.Context, userID, contactID string, adj ImportanceAdjustment) error {
	// Clamping happens in SQL so the adjustment is a single atomic statement.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contact_importance (user_id, contact_id, importance_score, interaction_count, last_interaction, updated_at)
		 VALUES ($1, $2, LEAST(10, GREATEST(0, $3::DOUBLE PRECISION)), $4,
		         CASE WHEN $5 THEN now() ELSE NULL END, now())
		 ON CONFLICT (user_id, contact_id) DO UPDATE SET
			importance_score = LEAST(10, GREATEST(0, contact_importance.importance_score + $6)),
			interaction_count = contact_importance.interaction_count + $4,
			last_interaction = CASE WHEN $5 THEN now() ELSE contact_importance.last_interaction END,
			updated_at = now()`,
		userID, contactID, ClampImportance(adj.CreateScore), adj.CountDelta, adj.TouchInteraction, adj.Delta)
	if err != nil {
		return fmt.Errorf("adjusting contact importance: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID string) (*UserPreference, error) {
	return s.readPreferences(ctx, s.pool, userID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) readPreferences(ctx context.Context, q querier, userID string) (*UserPreference, error) {
	p := UserPreference{UserID: userID}
	var kw, pw, sw, patterns []byte
	var lastRun *time.Time
	err := q.QueryRow(ctx,
		`SELECT keyword_weights, platform_weights, sender_weights, patterns, last_learning_run, samples_analyzed
		 FROM user_preferences WHERE user_id = $1`, userID).
		Scan(&kw, &pw, &sw, &patterns, &lastRun, &p.SamplesAnalyzed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}
	if err := json.Unmarshal(kw, &p.KeywordWeights); err != nil {
		return nil, fmt.Errorf("decoding keyword weights: %w", err)
	}
	if err := json.Unmarshal(pw, &p.PlatformWeights); err != nil {
		return nil, fmt.Errorf("decoding platform weights: %w", err)
	}
	if err := json.Unmarshal(sw, &p.SenderWeights); err != nil {
		return nil, fmt.Errorf("decoding sender weights: %w", err)
	}
	if err := json.Unmarshal(patterns, &p.Patterns); err != nil {
		return nil, fmt.Errorf("decoding patterns: %w", err)
	}
	if lastRun != nil {
		p.LastLearningRun = *lastRun
	}
	return &p, nil
}

// AdjustPreferenceWeights merges weight deltas under a row lock so concurrent
// tracker and learner writes compose instead of overwriting each other.
func (s *PostgresStore) AdjustPreferenceWeights(ctx context.Context, userID string, keywordDeltas, platformDeltas map[string]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting preference tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Warn().Err(rbErr).Msg("preference tx rollback failed")
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO user_preferences (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensuring preference row: %w", err)
	}
	p := UserPreference{}
	var kw, pw []byte
	err = tx.QueryRow(ctx,
		`SELECT keyword_weights, platform_weights FROM user_preferences WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&kw, &pw)
	if err != nil {
		return fmt.Errorf("locking preference row: %w", err)
	}
	if err := json.Unmarshal(kw, &p.KeywordWeights); err != nil {
		return fmt.Errorf("decoding keyword weights: %w", err)
	}
	if err := json.Unmarshal(pw, &p.PlatformWeights); err != nil {
		return fmt.Errorf("decoding platform weights: %w", err)
	}
	if p.KeywordWeights == nil {
		p.KeywordWeights = make(map[string]float64)
	}
	if p.PlatformWeights == nil {
		p.PlatformWeights = make(map[string]float64)
	}
	applyDeltas(p.KeywordWeights, keywordDeltas)
	applyDeltas(p.PlatformWeights, platformDeltas)
	kwOut, err := json.Marshal(p.KeywordWeights)
	if err != nil {
		return fmt.Errorf("encoding keyword weights: %w", err)
	}
	pwOut, err := json.Marshal(p.PlatformWeights)
	if err != nil {
		return fmt.Errorf("encoding platform weights: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE user_preferences SET keyword_weights = $2, platform_weights = $3 WHERE user_id = $1`,
		userID, kwOut, pwOut)
	if err != nil {
		return fmt.Errorf("writing preference weights: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing preference tx: %w", err)
	}
	return nil
}

func applyDeltas(weights map[string]float64, deltas map[string]float64) {
	for k, d := range deltas {
		cur, ok := weights[k]
		if !ok {
			cur = 0.5
		}
		weights[k] = ClampWeight(cur + d)
	}
}

func (s *PostgresStore) ReplaceLearnedWeights(ctx context.Context, userID string, sender, keyword, platform map[string]float64, patterns []string) error {
	sw, err := json.Marshal(clampMap(sender))
	if err != nil {
		return fmt.Errorf("encoding sender weights: %w", err)
	}
	kw, err := json.Marshal(clampMap(keyword))
	if err != nil {
		return fmt.Errorf("encoding keyword weights: %w", err)
	}
	pw, err := json.Marshal(clampMap(platform))
	if err != nil {
		return fmt.Errorf("encoding platform weights: %w", err)
	}
	if patterns == nil {
		patterns = []string{}
	}
	pats, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("encoding patterns: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, sender_weights, keyword_weights, platform_weights, patterns)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
			sender_weights = EXCLUDED.sender_weights,
			keyword_weights = EXCLUDED.keyword_weights,
			platform_weights = EXCLUDED.platform_weights,
			patterns = EXCLUDED.patterns`,
		userID, sw, kw, pw, pats)
	if err != nil {
		return fmt.Errorf("replacing learned weights: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordLearningRun(ctx context.Context, userID string, samples int, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, last_learning_run, samples_analyzed)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
			last_learning_run = EXCLUDED.last_learning_run,
			samples_analyzed = user_preferences.samples_analyzed + $3`,
		userID, at, samples)
	if err != nil {
		return fmt.Errorf("recording learning run: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendInteraction(ctx context.Context, ev *InteractionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	md, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding interaction metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO interaction_events (id, user_id, event_type, message_id, contact_id, metadata, ts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.ID, ev.UserID, string(ev.EventType), ev.MessageID, ev.ContactID, md, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("appending interaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInteractionsSince(ctx context.Context, userID string, since time.Time, limit int) ([]*InteractionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, event_type, message_id, contact_id, metadata, ts
		 FROM interaction_events WHERE user_id = $1 AND ts >= $2
		 ORDER BY ts DESC LIMIT $3`, userID, since, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()
	var out []*InteractionEvent
	for rows.Next() {
		var ev InteractionEvent
		var et string
		var md []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &et, &ev.MessageID, &ev.ContactID, &md, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		ev.EventType = EventType(et)
		if err := json.Unmarshal(md, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("decoding interaction metadata: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateTodo(ctx context.Context, t *TodoItem) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO todo_items (id, user_id, title, description, status, priority, due_date, extracted_from, confidence, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.UserID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.ExtractedFrom, t.Confidence, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting todo: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTodos(ctx context.Context, userID string) ([]*TodoItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, status, priority, due_date, extracted_from, confidence, created_at
		 FROM todo_items WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()
	var out []*TodoItem
	for rows.Next() {
		var t TodoItem
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority,
			&t.DueDate, &t.ExtractedFrom, &t.Confidence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning todo: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindTopic(ctx context.Context, userID, name string) (*ConversationTopic, error) {
	var t ConversationTopic
	var kw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, description, category, importance, keywords, sentiment, message_count, first_seen_at, last_activity_at
		 FROM conversation_topics WHERE user_id = $1 AND name = $2`, userID, name).
		Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.Category, &t.Importance, &kw,
			&t.Sentiment, &t.MessageCount, &t.FirstSeenAt, &t.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding topic: %w", err)
	}
	if err := json.Unmarshal(kw, &t.Keywords); err != nil {
		return nil, fmt.Errorf("decoding topic keywords: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, t *ConversationTopic) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.FirstSeenAt.IsZero() {
		t.FirstSeenAt = now
	}
	if t.LastActivityAt.IsZero() {
		t.LastActivityAt = t.FirstSeenAt
	}
	if t.Keywords == nil {
		t.Keywords = []string{}
	}
	kw, err := json.Marshal(t.Keywords)
	if err != nil {
		return fmt.Errorf("encoding topic keywords: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_topics (id, user_id, name, description, category, importance, keywords, sentiment, message_count, first_seen_at, last_activity_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.UserID, t.Name, t.Description, t.Category, t.Importance, kw, t.Sentiment,
		t.MessageCount, t.FirstSeenAt, t.LastActivityAt)
	if err != nil {
		return fmt.Errorf("inserting topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchTopic(ctx context.Context, id string, importance int, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversation_topics SET
			importance = GREATEST(importance, $2),
			message_count = message_count + 1,
			last_activity_at = $3
		 WHERE id = $1`, id, importance, at)
	if err != nil {
		return fmt.Errorf("touching topic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertEmbedding(ctx context.Context, e *MessageEmbedding) error {
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("encoding embedding vector: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO message_embeddings (message_id, user_id, vector, model, updated_at)
		 VALUES ($1,$2,$3,$4,now())
		 ON CONFLICT (message_id) DO UPDATE SET
			vector = EXCLUDED.vector, model = EXCLUDED.model, updated_at = now()`,
		e.MessageID, e.UserID, vec, e.Model)
	if err != nil {
		return fmt.Errorf("upserting embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEmbedding(ctx context.Context, messageID string) (*MessageEmbedding, error) {
	var e MessageEmbedding
	var vec []byte
	err := s.pool.QueryRow(ctx,
		`SELECT message_id, user_id, vector, model, updated_at FROM message_embeddings WHERE message_id = $1`, messageID).
		Scan(&e.MessageID, &e.UserID, &vec, &e.Model, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading embedding: %w", err)
	}
	if err := json.Unmarshal(vec, &e.Vector); err != nil {
		return nil, fmt.Errorf("decoding embedding vector: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListEmbeddings(ctx context.Context, userID string) ([]*MessageEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, user_id, vector, model, updated_at FROM message_embeddings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}
	defer rows.Close()
	var out []*MessageEmbedding
	for rows.Next() {
		var e MessageEmbedding
		var vec []byte
		if err := rows.Scan(&e.MessageID, &e.UserID, &vec, &e.Model, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		if err := json.Unmarshal(vec, &e.Vector); err != nil {
			return nil, fmt.Errorf("decoding embedding vector: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateGoal(ctx context.Context, g *Goal) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if g.Keywords == nil {
		g.Keywords = []string{}
	}
	kw, err := json.Marshal(g.Keywords)
	if err != nil {
		return fmt.Errorf("encoding goal keywords: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO goals (id, user_id, goal, category, priority, confidence, keywords, evidence, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.UserID, g.Goal, g.Category, g.Priority, g.Confidence, kw, g.Evidence, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGoals(ctx context.Context, userID string) ([]*Goal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, goal, category, priority, confidence, keywords, evidence, created_at
		 FROM goals WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing goals: %w", err)
	}
	defer rows.Close()
	var out []*Goal
	for rows.Next() {
		var g Goal
		var kw []byte
		if err := rows.Scan(&g.ID, &g.UserID, &g.Goal, &g.Category, &g.Priority, &g.Confidence,
			&kw, &g.Evidence, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning goal: %w", err)
		}
		if err := json.Unmarshal(kw, &g.Keywords); err != nil {
			return nil, fmt.Errorf("decoding goal keywords: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM (
			SELECT user_id FROM messages
			UNION SELECT user_id FROM user_preferences
			UNION SELECT user_id FROM interaction_events
		 ) u ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing user ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
