package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tg_ingest/internal/model"
	"tg_ingest/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// searchCap bounds how many rows a substring search may return no
// matter what display limit the caller asks for.
const searchCap = 1000

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertMessages inserts a batch of messages, skipping rows that
// collide with an already stored (provider_message_id, source_id).
// Returns the number of rows actually inserted.
func (s *SQLite) InsertMessages(ctx context.Context, msgs []model.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, m := range msgs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages
			   (provider_message_id, source_id, source_type, text, sender, sent_at, ingested_at, matched_keywords)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ProviderMessageID, m.SourceID, string(m.SourceType), m.Text, m.Sender,
			m.SentAt.UTC().Format(timeLayout), m.IngestedAt.UTC().Format(timeLayout),
			joinKeywords(m.MatchedKeywords),
		)
		if err != nil {
			return 0, fmt.Errorf("insert message %d: %w", m.ProviderMessageID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// SearchMessages returns messages whose text or sender contains query,
// newest first. The result is capped at limit, or at the internal
// search cap when limit is zero or larger than the cap.
func (s *SQLite) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > searchCap {
		limit = searchCap
	}
	pattern := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_message_id, source_id, source_type, text, sender, sent_at, ingested_at, matched_keywords
		 FROM messages
		 WHERE text LIKE ? OR sender LIKE ?
		 ORDER BY sent_at DESC, id DESC
		 LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// TouchSource upserts the source row, moving last_ingested_at forward
// and adding `added` to the stored message count.
func (s *SQLite) TouchSource(ctx context.Context, src model.Source, added int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (source_id, source_type, display_name, last_ingested_at, total_message_count)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source_id) DO UPDATE SET
		   source_type = excluded.source_type,
		   display_name = excluded.display_name,
		   last_ingested_at = excluded.last_ingested_at,
		   total_message_count = sources.total_message_count + excluded.total_message_count`,
		src.SourceID, string(src.SourceType), src.DisplayName, now, added,
	)
	if err != nil {
		return fmt.Errorf("touch source: %w", err)
	}
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, sourceID string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_id, source_type, display_name, last_ingested_at, total_message_count
		 FROM sources WHERE source_id = ?`, sourceID,
	)
	src, err := scanSource(row)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListSources returns all sources ever ingested, ordered by ID.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, source_type, display_name, last_ingested_at, total_message_count
		 FROM sources ORDER BY source_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// RecordSession stores the outcome of a finished ingestion session.
func (s *SQLite) RecordSession(ctx context.Context, sess *model.IngestionSession) error {
	var ended *string
	if sess.EndedAt != nil {
		v := sess.EndedAt.UTC().Format(timeLayout)
		ended = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions
		   (session_id, source_id, started_at, ended_at, messages_fetched, messages_accepted, batches_attempted, errors_encountered)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.SourceID, sess.StartedAt.UTC().Format(timeLayout), ended,
		sess.MessagesFetched, sess.MessagesAccepted, sess.BatchesAttempted, sess.ErrorsEncountered,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecentSessions returns the latest sessions, newest first.
func (s *SQLite) RecentSessions(ctx context.Context, limit int) ([]model.IngestionSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, source_id, started_at, ended_at, messages_fetched, messages_accepted, batches_attempted, errors_encountered
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.IngestionSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Stats aggregates message counts per source and the global sent-at
// range.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(sent_at), MAX(sent_at) FROM messages`,
	).Scan(&st.TotalMessages, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("message totals: %w", err)
	}
	if oldest.Valid {
		t, _ := time.Parse(timeLayout, oldest.String)
		st.OldestSentAt = &t
	}
	if newest.Valid {
		t, _ := time.Parse(timeLayout, newest.String)
		st.NewestSentAt = &t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.source_id, COALESCE(s.display_name, ''), COUNT(*)
		 FROM messages m
		 LEFT JOIN sources s ON s.source_id = m.source_id
		 GROUP BY m.source_id
		 ORDER BY COUNT(*) DESC, m.source_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("per-source counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.SourceID, &sc.DisplayName, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		st.BySource = append(st.BySource, sc)
	}
	return st, rows.Err()
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, ",")
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (model.Message, error) {
	var m model.Message
	var typeStr, sentStr, ingestedStr, keywordsStr string
	err := row.Scan(&m.ID, &m.ProviderMessageID, &m.SourceID, &typeStr, &m.Text, &m.Sender, &sentStr, &ingestedStr, &keywordsStr)
	if err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	m.SourceType = model.SourceType(typeStr)
	m.SentAt, _ = time.Parse(timeLayout, sentStr)
	m.IngestedAt, _ = time.Parse(timeLayout, ingestedStr)
	m.MatchedKeywords = splitKeywords(keywordsStr)
	return m, nil
}

func scanSource(row scannable) (model.Source, error) {
	var src model.Source
	var typeStr string
	var lastIngested sql.NullString
	err := row.Scan(&src.SourceID, &typeStr, &src.DisplayName, &lastIngested, &src.TotalMessageCount)
	if err != nil {
		return src, fmt.Errorf("scan source: %w", err)
	}
	src.SourceType = model.SourceType(typeStr)
	if lastIngested.Valid {
		t, _ := time.Parse(timeLayout, lastIngested.String)
		src.LastIngestedAt = &t
	}
	return src, nil
}

func scanSession(row scannable) (model.IngestionSession, error) {
	var sess model.IngestionSession
	var startedStr string
	var endedStr sql.NullString
	err := row.Scan(&sess.SessionID, &sess.SourceID, &startedStr, &endedStr,
		&sess.MessagesFetched, &sess.MessagesAccepted, &sess.BatchesAttempted, &sess.ErrorsEncountered)
	if err != nil {
		return sess, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt, _ = time.Parse(timeLayout, startedStr)
	if endedStr.Valid {
		t, _ := time.Parse(timeLayout, endedStr.String)
		sess.EndedAt = &t
	}
	return sess, nil
}
