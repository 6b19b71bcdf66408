package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
)

// candidateWindow bounds how far back FindCandidateSessions reaches when
// neither project nor user matches.
const candidateWindow = 30 * 24 * time.Hour

// candidateLimit caps the candidate set handed to the relationship mapper.
const candidateLimit = 50

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	log  *logging.Logger
}

// Open opens or creates the database at cfg.Path and bootstraps the schema.
func Open(cfg config.StoreConfig, log *logging.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{conn: conn, log: log.Named("store")}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			project_name TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			last_activity TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_name);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (session_id, position)
		);

		CREATE TABLE IF NOT EXISTS relationships (
			target_session_id TEXT NOT NULL,
			candidate_session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			confidence REAL NOT NULL,
			evidence TEXT,
			dimensions TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			PRIMARY KEY (target_session_id, candidate_session_id)
		);

		CREATE TABLE IF NOT EXISTS state_profiles (
			session_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			confidence REAL NOT NULL,
			evidence TEXT,
			documentation_ready INTEGER NOT NULL,
			documentation_value INTEGER NOT NULL,
			recommendations TEXT,
			next_actions TEXT,
			generated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// LoadSession implements Store.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*engine.Session, error) {
	session := &engine.Session{SessionID: sessionID}
	var lastActivity string
	err := s.conn.QueryRowContext(ctx,
		`SELECT project_name, user_id, last_activity FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&session.ProjectName, &session.UserID, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	session.LastActivity = parseTime(lastActivity)

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, role, content, timestamp FROM messages WHERE session_id = ? ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	session.Messages = []engine.Message{}
	for rows.Next() {
		var msg engine.Message
		var ts string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SessionID = sessionID
		msg.Timestamp = parseTime(ts)
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return session, nil
}

// ListSessions implements Store. Message bodies are not loaded.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*engine.Session, error) {
	if limit <= 0 {
		limit = candidateLimit
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT session_id, project_name, user_id, last_activity
		 FROM sessions ORDER BY last_activity DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// FindCandidateSessions implements Store: same project, same user, or
// recent activity, excluding the target itself.
func (s *SQLiteStore) FindCandidateSessions(ctx context.Context, target *engine.Session) ([]*engine.Session, error) {
	cutoff := time.Now().Add(-candidateWindow).UTC().Format(time.RFC3339Nano)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT session_id, project_name, user_id, last_activity
		 FROM sessions
		 WHERE session_id != ?
		   AND (
			(project_name != '' AND project_name = ?)
			OR (user_id != '' AND user_id = ?)
			OR last_activity >= ?
		   )
		 ORDER BY last_activity DESC LIMIT ?`,
		target.SessionID, target.ProjectName, target.UserID, cutoff, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("find candidates for %s: %w", target.SessionID, err)
	}
	defer rows.Close()

	stubs, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}

	// The mapper needs message bodies; hydrate each candidate.
	candidates := make([]*engine.Session, 0, len(stubs))
	for _, stub := range stubs {
		full, err := s.LoadSession(ctx, stub.SessionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		candidates = append(candidates, full)
	}
	return candidates, nil
}

// SaveSession implements Store: session upsert plus full message replace,
// in one transaction.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *engine.Session) error {
	if err := engine.ValidateSession(session); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, project_name, user_id, last_activity)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			project_name = excluded.project_name,
			user_id = excluded.user_id,
			last_activity = excluded.last_activity`,
		session.SessionID, session.ProjectName, session.UserID, formatTime(session.LastActivity))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, session.SessionID); err != nil {
		return fmt.Errorf("clear messages for %s: %w", session.SessionID, err)
	}
	for i, msg := range session.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, position, role, content, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, session.SessionID, i, string(msg.Role), msg.Content, formatTime(msg.Timestamp))
		if err != nil {
			return fmt.Errorf("insert message %d for %s: %w", i, session.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save for %s: %w", session.SessionID, err)
	}
	s.log.Debug(ctx, "session saved",
		zap.String("session_id", session.SessionID),
		zap.Int("messages", len(session.Messages)))
	return nil
}

// SaveRelationships implements Store: full replace of the target's records.
func (s *SQLiteStore) SaveRelationships(ctx context.Context, set *engine.RelationshipSet) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin relationship save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE target_session_id = ?`, set.SessionID); err != nil {
		return fmt.Errorf("clear relationships for %s: %w", set.SessionID, err)
	}

	generated := formatTime(set.GeneratedAt)
	for _, rec := range set.Relationships {
		evidence, err := json.Marshal(rec.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		dims, err := json.Marshal(rec.Dimensions)
		if err != nil {
			return fmt.Errorf("marshal dimensions: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO relationships
			 (target_session_id, candidate_session_id, type, confidence, evidence, dimensions, generated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			set.SessionID, rec.SessionID, string(rec.Type), rec.Confidence,
			string(evidence), string(dims), generated)
		if err != nil {
			return fmt.Errorf("insert relationship %s->%s: %w", set.SessionID, rec.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit relationships for %s: %w", set.SessionID, err)
	}
	return nil
}

// SaveStateProfile implements Store.
func (s *SQLiteStore) SaveStateProfile(ctx context.Context, profile *engine.StateProfile) error {
	evidence, err := json.Marshal(profile.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	recs, err := json.Marshal(profile.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	actions, err := json.Marshal(profile.NextActions)
	if err != nil {
		return fmt.Errorf("marshal next actions: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO state_profiles
		 (session_id, state, confidence, evidence, documentation_ready,
		  documentation_value, recommendations, next_actions, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			confidence = excluded.confidence,
			evidence = excluded.evidence,
			documentation_ready = excluded.documentation_ready,
			documentation_value = excluded.documentation_value,
			recommendations = excluded.recommendations,
			next_actions = excluded.next_actions,
			generated_at = excluded.generated_at`,
		profile.SessionID, string(profile.State), profile.Confidence, string(evidence),
		boolToInt(profile.DocumentationReady), profile.DocumentationValue,
		string(recs), string(actions), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save state profile %s: %w", profile.SessionID, err)
	}
	return nil
}

func scanSessions(rows *sql.Rows) ([]*engine.Session, error) {
	var sessions []*engine.Session
	for rows.Next() {
		s := &engine.Session{}
		var lastActivity string
		if err := rows.Scan(&s.SessionID, &s.ProjectName, &s.UserID, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.LastActivity = parseTime(lastActivity)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime degrades malformed timestamps to the zero value; the scoring
// layers treat those as signal-absent.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
