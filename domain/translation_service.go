package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TranslationStore reads tasks and persists translations scoped to a user.
type TranslationStore interface {
	GetTask(ctx context.Context, userID, taskID string) (*Task, error)
	ListSubtasks(ctx context.Context, userID, taskID string) ([]Subtask, error)
	// FindTranslation returns nil when no translation exists for the pair.
	FindTranslation(ctx context.Context, userID, taskID, language string) (*Translation, error)
	// InsertTranslation stores t unless the pair already exists, in which
	// case the existing row is returned with inserted false.
	InsertTranslation(ctx context.Context, userID string, t Translation) (stored Translation, inserted bool, err error)
	UpdateTranslationPayload(ctx context.Context, userID string, t Translation) error
}

// Lease serialises generation for one key across processes.
type Lease interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// TranslationResult is the outcome of GetOrCreate.
type TranslationResult struct {
	Translation Translation
	Cached      bool
	// Resolution is empty for cached rows.
	Resolution Resolution
}

const defaultLeaseWait = 5 * time.Second

type TranslationService struct {
	store        TranslationStore
	model        Model
	lease        Lease
	leaseWait    time.Duration
	pollInterval time.Duration
	logger       *log.Logger
	now          func() time.Time
}

func NewTranslationService(store TranslationStore, model Model, logger *log.Logger) *TranslationService {
	return &TranslationService{
		store:        store,
		model:        model,
		logger:       logger,
		leaseWait:    defaultLeaseWait,
		pollInterval: 100 * time.Millisecond,
		now:          time.Now,
	}
}

// WithLease makes concurrent misses for the same pair wait up to wait for
// the lease holder's row instead of calling the model themselves.
func (s *TranslationService) WithLease(lease Lease, wait time.Duration) *TranslationService {
	s.lease = lease
	if wait > 0 {
		s.leaseWait = wait
	}
	return s
}

// GetOrCreate returns the stored translation for (taskID, language) or
// translates the task, normalizes the model output and stores the result.
func (s *TranslationService) GetOrCreate(ctx context.Context, userID, taskID, language string) (TranslationResult, error) {
	if !s.model.Configured() {
		return TranslationResult{}, ErrModelNotConfigured
	}

	existing, err := s.store.FindTranslation(ctx, userID, taskID, language)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("find translation: %w", err)
	}
	if existing != nil {
		return s.cachedResult(ctx, userID, *existing), nil
	}

	task, err := s.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return TranslationResult{}, ErrTaskNotFound
	}
	subtasks, err := s.store.ListSubtasks(ctx, userID, taskID)
	if err != nil {
		return TranslationResult{}, fmt.Errorf("%w: %v", ErrSubtasksUnavailable, err)
	}

	if s.lease != nil {
		key := "translate:" + taskID + ":" + language
		acquired, err := s.lease.Acquire(ctx, key)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("taskId", taskID).Warn("translation lease unavailable")
		case acquired:
			defer func() {
				if err := s.lease.Release(context.WithoutCancel(ctx), key); err != nil {
					s.logger.WithError(err).WithField("taskId", taskID).Warn("translation lease release failed")
				}
			}()
		default:
			winner, err := s.waitForTranslation(ctx, userID, taskID, language)
			if err != nil {
				return TranslationResult{}, err
			}
			if winner != nil {
				return s.cachedResult(ctx, userID, *winner), nil
			}
		}
	}

	prompt, err := TranslationPrompt(language, *task, subtasks)
	if err != nil {
		return TranslationResult{}, err
	}
	raw := s.model.Translate(ctx, prompt)
	data, resolution := NormalizeTranslation(raw, *task, subtasks)

	logger := s.logger.WithFields(log.Fields{
		"taskId":     taskID,
		"language":   language,
		"resolution": resolution,
	})
	if resolution == ResolvedEcho || resolution == ResolvedPlainText {
		logger.Debugf("model output: %s", raw)
	}

	stored, inserted, err := s.store.InsertTranslation(ctx, userID, Translation{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Language:  language,
		Payload:   StructuredPayload(data),
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return TranslationResult{}, fmt.Errorf("insert translation: %w", err)
	}
	if !inserted {
		logger.Info("translation already stored by a concurrent request")
		return s.cachedResult(ctx, userID, stored), nil
	}

	logger.Info("translation stored")
	return TranslationResult{Translation: stored, Resolution: resolution}, nil
}

// cachedResult upgrades legacy plain-text rows to the structured form
// before returning them. Failures keep the plain row.
func (s *TranslationService) cachedResult(ctx context.Context, userID string, t Translation) TranslationResult {
	result := TranslationResult{Translation: t, Cached: true}
	if !t.Payload.IsPlainText() {
		return result
	}

	logger := s.logger.WithFields(log.Fields{"taskId": t.TaskID, "translationId": t.ID})
	task, err := s.store.GetTask(ctx, userID, t.TaskID)
	if err != nil || task == nil {
		logger.WithError(err).Warn("plain translation kept: task unavailable")
		return result
	}
	subtasks, err := s.store.ListSubtasks(ctx, userID, t.TaskID)
	if err != nil {
		logger.WithError(err).Warn("plain translation kept: subtasks unavailable")
		return result
	}

	t.Payload = StructuredPayload(MigratePlainText(t.Payload.Text, *task, subtasks))
	if err := s.store.UpdateTranslationPayload(ctx, userID, t); err != nil {
		logger.WithError(err).Warn("migrated translation not persisted")
	} else {
		logger.Info("plain translation migrated")
	}
	result.Translation = t
	return result
}

func (s *TranslationService) waitForTranslation(ctx context.Context, userID, taskID, language string) (*Translation, error) {
	deadline := time.NewTimer(s.leaseWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
			t, err := s.store.FindTranslation(ctx, userID, taskID, language)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithError(err).Warn("polling for translation failed")
				continue
			}
			if err != nil {
				return nil, err
			}
			if t != nil {
				return t, nil
			}
		}
	}
}
