package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// SaveSubject inserts or replaces a subject. An empty ID is assigned a uuid.
func (s *LocalStore) SaveSubject(ctx context.Context, subj *types.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subj.ID == "" {
		subj.ID = uuid.NewString()
	}
	if subj.CreatedAt.IsZero() {
		subj.CreatedAt = s.now()
	}

	var owner interface{}
	if subj.OwnerID != "" {
		owner = subj.OwnerID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO subjects (id, name, owner_id, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		subj.ID, subj.Name, owner, subj.Description, formatTime(subj.CreatedAt),
	)
	if err != nil {
		logging.StoreError("Failed to save subject %s: %v", subj.ID, err)
		return fmt.Errorf("save subject: %w", err)
	}
	logging.StoreDebug("Subject saved: id=%s name=%q", subj.ID, subj.Name)
	return nil
}

// Resolve looks up a subject by id. A miss returns types.ErrSubjectNotFound.
func (s *LocalStore) Resolve(ctx context.Context, subjectID string) (*types.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		subj      types.Subject
		owner     sql.NullString
		desc      sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, description, created_at FROM subjects WHERE id = ?`, subjectID,
	).Scan(&subj.ID, &subj.Name, &owner, &desc, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrSubjectNotFound, subjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve subject %s: %w", subjectID, err)
	}

	subj.OwnerID = owner.String
	subj.Description = desc.String
	subj.CreatedAt = parseTime(createdAt)
	return &subj, nil
}

// AppendChat records one chat message for a subject.
func (s *LocalStore) AppendChat(ctx context.Context, subjectID string, msg types.ChatMessage) error {
	if !msg.Sender.Valid() {
		return fmt.Errorf("invalid chat sender %q", msg.Sender)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (subject_id, sender, message, created_at) VALUES (?, ?, ?, ?)`,
		subjectID, string(msg.Sender), msg.Content, formatTime(msg.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

// FetchAll returns every chat message for a subject in creation order.
func (s *LocalStore) FetchAll(ctx context.Context, subjectID string) ([]types.ChatMessage, error) {
	timer := logging.StartTimer(logging.CategoryStore, "FetchAll")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, message, created_at FROM chat_logs WHERE subject_id = ? ORDER BY created_at ASC, id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch chat logs: %w", err)
	}
	defer rows.Close()

	var out []types.ChatMessage
	for rows.Next() {
		var sender, message, createdAt string
		if err := rows.Scan(&sender, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		out = append(out, types.ChatMessage{
			Sender:    types.Sender(sender),
			Timestamp: parseTime(createdAt),
			Content:   message,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat logs: %w", err)
	}

	logging.StoreDebug("Fetched %d chat messages for subject %s", len(out), subjectID)
	return out, nil
}

// ChatSummary returns the chat log as "[sender] message" lines, newest last,
// capped at limit messages (0 means all).
func (s *LocalStore) ChatSummary(ctx context.Context, subjectID string, limit int) (string, error) {
	msgs, err := s.FetchAll(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	var out []byte
	for _, m := range msgs {
		out = fmt.Appendf(out, "[%s] %s\n", m.Sender, m.Content)
	}
	return string(out), nil
}

// setClock overrides the store clock.
func (s *LocalStore) setClock(now func() time.Time) {
	s.now = now
}
