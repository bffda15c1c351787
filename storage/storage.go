package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"todogenie-api/domain"
)

// Storage provides access to tasks, subtasks and translations in PostgreSQL.
// Every query is scoped to the owning user through tasks.user_id.
type Storage struct {
	db *sql.DB
	sq sq.StatementBuilderType
}

// Open connects to the PostgreSQL database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Storage {
	return &Storage{db: db, sq: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (s *Storage) DB() *sql.DB { return s.db }

func (s *Storage) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Storage) Close() error { return s.db.Close() }

// validIDs reports whether all ids are UUIDs. Anything else cannot match a row.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func (s *Storage) selectTask(userID, taskID string) sq.SelectBuilder {
	return s.sq.
		Select("id", "title", "description", "priority", "due_date", "completed", "created_at", "updated_at").
		From("tasks").
		Where(sq.Eq{"id": taskID, "user_id": userID})
}

// GetTask returns nil when the task does not exist for the user.
func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if !validIDs(userID, taskID) {
		return nil, nil
	}
	query, args, err := s.selectTask(userID, taskID).ToSql()
	if err != nil {
		return nil, err
	}

	var (
		t           domain.Task
		description sql.NullString
		priority    sql.NullString
		dueDate     sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.Title, &description, &priority, &dueDate, &t.Completed, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	if description.Valid {
		t.Description = &description.String
	}
	if priority.Valid {
		p := domain.Priority(priority.String)
		t.Priority = &p
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (s *Storage) selectSubtasks(userID, taskID string) sq.SelectBuilder {
	return s.sq.
		Select("s.id", "s.task_id", "s.title", "s.notes", "s.estimated_minutes", "s.completed", "s.created_at").
		From("subtasks s").
		Join("tasks t ON t.id = s.task_id").
		Where(sq.Eq{"s.task_id": taskID, "t.user_id": userID}).
		OrderBy("s.created_at", "s.id")
}

// ListSubtasks returns the task's subtasks in creation order.
func (s *Storage) ListSubtasks(ctx context.Context, userID, taskID string) ([]domain.Subtask, error) {
	if !validIDs(userID, taskID) {
		return []domain.Subtask{}, nil
	}
	query, args, err := s.selectSubtasks(userID, taskID).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select subtasks: %w", err)
	}
	defer rows.Close()

	subtasks := []domain.Subtask{}
	for rows.Next() {
		var (
			st    domain.Subtask
			notes sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &notes, &st.EstimatedMinutes, &st.Completed, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		if notes.Valid {
			st.Notes = &notes.String
		}
		st.CreatedAt = st.CreatedAt.UTC()
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

// ReplaceSubtasks deletes the task's subtasks and inserts rows in one transaction.
func (s *Storage) ReplaceSubtasks(ctx context.Context, userID, taskID string, rows []domain.GeneratedSubtask) (int, error) {
	return s.writeSubtasks(ctx, userID, taskID, rows, true)
}

// AppendSubtasks inserts rows after the task's existing subtasks.
func (s *Storage) AppendSubtasks(ctx context.Context, userID, taskID string, rows []domain.GeneratedSubtask) (int, error) {
	return s.writeSubtasks(ctx, userID, taskID, rows, false)
}

func (s *Storage) writeSubtasks(ctx context.Context, userID, taskID string, rows []domain.GeneratedSubtask, replace bool) (int, error) {
	if !validIDs(userID, taskID) {
		return 0, domain.ErrTaskNotFound
	}
	inserted := 0
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		lock, args, err := s.lockTask(userID, taskID).ToSql()
		if err != nil {
			return err
		}
		var id string
		if err := tx.QueryRowContext(ctx, lock, args...).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrTaskNotFound
			}
			return fmt.Errorf("lock task: %w", err)
		}

		if replace {
			del, args, err := s.sq.Delete("subtasks").Where(sq.Eq{"task_id": taskID}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, del, args...); err != nil {
				return fmt.Errorf("delete subtasks: %w", err)
			}
		}
		if len(rows) == 0 {
			return nil
		}

		ins, args, err := s.insertSubtasks(taskID, rows).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, ins, args...)
		if err != nil {
			return fmt.Errorf("insert subtasks: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Storage) lockTask(userID, taskID string) sq.SelectBuilder {
	return s.sq.Select("id").From("tasks").Where(sq.Eq{"id": taskID, "user_id": userID}).Suffix("FOR UPDATE")
}

// subtaskCreatedAt offsets each row of a batch from the transaction time so
// the batch reads back in model order.
const subtaskCreatedAt = "now() + ?::int * interval '1 microsecond'"

func (s *Storage) insertSubtasks(taskID string, rows []domain.GeneratedSubtask) sq.InsertBuilder {
	q := s.sq.Insert("subtasks").Columns("id", "task_id", "title", "notes", "estimated_minutes", "completed", "created_at")
	for i, r := range rows {
		q = q.Values(uuid.NewString(), taskID, r.Title, r.Notes, r.EstimatedMinutes, false, sq.Expr(subtaskCreatedAt, i))
	}
	return q
}

func (s *Storage) selectTranslation(userID, taskID, language string) sq.SelectBuilder {
	return s.sq.
		Select("tr.id", "tr.task_id", "tr.language", "tr.payload_kind", "tr.translated_text", "tr.created_at").
		From("translations tr").
		Join("tasks t ON t.id = tr.task_id").
		Where(sq.Eq{"tr.task_id": taskID, "tr.language": language, "t.user_id": userID}).
		OrderBy("tr.created_at").
		Limit(1)
}

// FindTranslation returns the first stored translation for the pair or nil.
func (s *Storage) FindTranslation(ctx context.Context, userID, taskID, language string) (*domain.Translation, error) {
	if !validIDs(userID, taskID) {
		return nil, nil
	}
	query, args, err := s.selectTranslation(userID, taskID, language).ToSql()
	if err != nil {
		return nil, err
	}
	t, err := scanTranslation(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select translation: %w", err)
	}
	return &t, nil
}

// insertTranslationSQL inserts only for tasks owned by the user and skips
// rows whose (task_id, language) pair already exists.
const insertTranslationSQL = `INSERT INTO translations (id, task_id, language, payload_kind, translated_text, created_at)
SELECT $1::uuid, t.id, $3::text, $4::text, $5::jsonb, $6::timestamptz
FROM tasks t
WHERE t.id = $2 AND t.user_id = $7
ON CONFLICT (task_id, language) DO NOTHING
RETURNING id, task_id, language, payload_kind, translated_text, created_at`

// InsertTranslation stores t unless the pair exists. On conflict the
// existing row is returned with inserted false.
func (s *Storage) InsertTranslation(ctx context.Context, userID string, t domain.Translation) (domain.Translation, bool, error) {
	if !validIDs(userID, t.TaskID) {
		return domain.Translation{}, false, domain.ErrTaskNotFound
	}
	payload, err := t.Payload.MarshalJSON()
	if err != nil {
		return domain.Translation{}, false, fmt.Errorf("encode translation: %w", err)
	}

	stored, err := scanTranslation(s.db.QueryRowContext(ctx, insertTranslationSQL,
		t.ID, t.TaskID, t.Language, string(t.Payload.Kind), string(payload), t.CreatedAt, userID))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Translation{}, false, fmt.Errorf("insert translation: %w", err)
	}

	existing, err := s.FindTranslation(ctx, userID, t.TaskID, t.Language)
	if err != nil {
		return domain.Translation{}, false, err
	}
	if existing == nil {
		return domain.Translation{}, false, domain.ErrTaskNotFound
	}
	return *existing, false, nil
}

// UpdateTranslationPayload rewrites the payload of an existing translation.
func (s *Storage) UpdateTranslationPayload(ctx context.Context, userID string, t domain.Translation) error {
	if !validIDs(userID, t.ID) {
		return domain.ErrTaskNotFound
	}
	payload, err := t.Payload.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode translation: %w", err)
	}
	query, args, err := s.sq.Update("translations").
		Set("payload_kind", string(t.Payload.Kind)).
		Set("translated_text", sq.Expr("?::jsonb", string(payload))).
		Where(sq.Eq{"id": t.ID}).
		Where("task_id IN (SELECT id FROM tasks WHERE user_id = ?)", userID).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update translation: %w", err)
	}
	return nil
}

func scanTranslation(row *sql.Row) (domain.Translation, error) {
	var (
		t    domain.Translation
		kind sql.NullString
		raw  []byte
	)
	if err := row.Scan(&t.ID, &t.TaskID, &t.Language, &kind, &raw, &t.CreatedAt); err != nil {
		return domain.Translation{}, err
	}
	payload, err := domain.DecodeTranslatedPayload(domain.PayloadKind(kind.String), raw)
	if err != nil {
		return domain.Translation{}, err
	}
	t.Payload = payload
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// withTx runs fn within a transaction.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
