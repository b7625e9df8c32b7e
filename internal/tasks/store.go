// Package tasks stores a user's task list as tasks/active_tasks.json.
package tasks

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"remindbot/internal/userdata"
)

var ErrTaskNotFound = errors.New("tasks: task not found")

// Task is one entry of the active task list. Priority is free-form
// ("critical", "high", "medium", "low", ...); DueDate is "YYYY-MM-DD" or empty.
type Task struct {
	ID           string `json:"task_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Priority     string `json:"priority,omitempty"`
	DueDate      string `json:"due_date,omitempty"`
	Completed    bool   `json:"completed"`
	ReminderSent bool   `json:"reminder_sent,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

type taskFile struct {
	Tasks []Task `json:"tasks"`
}

// Store is backed by the user data tree. A mutex serializes
// read-modify-write cycles within the process.
type Store struct {
	users *userdata.Store
	mu    sync.Mutex
}

func NewStore(users *userdata.Store) *Store {
	return &Store{users: users}
}

func (s *Store) path(userID string) string {
	return filepath.Join(s.users.UserDir(userID), "tasks", "active_tasks.json")
}

// AreTasksEnabled reads preferences.task_settings.enabled. Any read error
// counts as disabled.
func (s *Store) AreTasksEnabled(userID string) bool {
	p, err := s.users.GetPreferences(userID)
	if err != nil {
		return false
	}
	return p.TaskSettings.Enabled
}

// LoadActiveTasks returns the incomplete tasks in file order.
func (s *Store) LoadActiveTasks(userID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetTaskByID returns ErrTaskNotFound when no task matches.
func (s *Store) GetTaskByID(userID, taskID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(userID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == taskID {
			t := all[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrTaskNotFound, userID, taskID)
}

// Update applies fn to the matching task and persists the list.
func (s *Store) Update(userID, taskID string, fn func(t *Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(userID)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].ID == taskID {
			fn(&all[i])
			return userdata.WriteJSON(s.path(userID), taskFile{Tasks: all})
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrTaskNotFound, userID, taskID)
}

// UpdateTask sets the given fields. Supported keys: reminder_sent,
// completed, completed_at, priority, due_date, title, description.
func (s *Store) UpdateTask(userID, taskID string, fields map[string]any) error {
	return s.Update(userID, taskID, func(t *Task) {
		for k, v := range fields {
			switch k {
			case "reminder_sent":
				t.ReminderSent, _ = v.(bool)
			case "completed":
				t.Completed, _ = v.(bool)
			case "completed_at":
				t.CompletedAt, _ = v.(string)
			case "priority":
				t.Priority, _ = v.(string)
			case "due_date":
				t.DueDate, _ = v.(string)
			case "title":
				t.Title, _ = v.(string)
			case "description":
				t.Description, _ = v.(string)
			}
		}
	})
}

// Save replaces the whole task list.
func (s *Store) Save(userID string, list []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return userdata.WriteJSON(s.path(userID), taskFile{Tasks: list})
}

func (s *Store) loadLocked(userID string) ([]Task, error) {
	var tf taskFile
	err := userdata.ReadJSON(s.path(userID), &tf)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tf.Tasks, nil
}
