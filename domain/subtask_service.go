package domain

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SubtaskStore persists generated subtasks for tasks owned by a user.
type SubtaskStore interface {
	GetTask(ctx context.Context, userID, taskID string) (*Task, error)
	// ReplaceSubtasks deletes the task's subtasks and inserts rows atomically.
	ReplaceSubtasks(ctx context.Context, userID, taskID string, rows []GeneratedSubtask) (int, error)
	AppendSubtasks(ctx context.Context, userID, taskID string, rows []GeneratedSubtask) (int, error)
}

// GenerateSubtasksRequest carries the task fields known to the caller.
// Empty Title makes the service read the task record.
type GenerateSubtasksRequest struct {
	TaskID      string
	Title       string
	Description string
	Priority    string
	Rerun       bool
}

type SubtaskService struct {
	store  SubtaskStore
	model  Model
	logger *log.Logger
}

func NewSubtaskService(store SubtaskStore, model Model, logger *log.Logger) *SubtaskService {
	return &SubtaskService{store: store, model: model, logger: logger}
}

// Generate asks the model for subtasks and stores them. An initial run
// replaces existing subtasks once the new batch is ready; a rerun appends.
func (s *SubtaskService) Generate(ctx context.Context, userID string, req GenerateSubtasksRequest) (int, error) {
	if !s.model.Configured() {
		return 0, ErrModelNotConfigured
	}

	title, description, priority := req.Title, req.Description, req.Priority
	if title == "" {
		task, err := s.store.GetTask(ctx, userID, req.TaskID)
		if err != nil {
			return 0, fmt.Errorf("load task: %w", err)
		}
		if task == nil {
			return 0, ErrTaskNotFound
		}
		title = task.Title
		description = stringOrEmpty(task.Description)
		if task.Priority != nil {
			priority = string(*task.Priority)
		}
	}

	raw := s.model.GenerateSubtasks(ctx, SubtaskPrompt(title, description, priority))
	items, err := ParseSubtaskArray(raw)
	if err != nil {
		s.logger.WithField("taskId", req.TaskID).Debugf("model output: %s", raw)
		return 0, err
	}
	rows := CoerceSubtasks(items)

	var inserted int
	if req.Rerun {
		inserted, err = s.store.AppendSubtasks(ctx, userID, req.TaskID, rows)
	} else {
		inserted, err = s.store.ReplaceSubtasks(ctx, userID, req.TaskID, rows)
	}
	if err != nil {
		return 0, fmt.Errorf("store subtasks: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"taskId":   req.TaskID,
		"rerun":    req.Rerun,
		"inserted": inserted,
		"received": len(items),
	}).Info("subtasks generated")
	return inserted, nil
}
