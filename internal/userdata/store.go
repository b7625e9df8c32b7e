package userdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store reads and writes per-user JSON files under <dir>/users/<user_id>/.
// Writes go through a temp file and rename.
type Store struct {
	dir string
	log logx.Logger
}

func NewStore(dir string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{dir: dir, log: log}
}

// Dir returns the data root.
func (s *Store) Dir() string { return s.dir }

// UserDir returns the directory holding userID's files.
func (s *Store) UserDir(userID string) string {
	return filepath.Join(s.dir, "users", userID)
}

// GetAllUserIDs lists user directories in sorted order. A missing users
// directory yields an empty list.
func (s *Store) GetAllUserIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "users"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetUserData returns the raw JSON object stored for domain.
func (s *Store) GetUserData(userID, domain string) (map[string]any, error) {
	var out map[string]any
	if err := s.read(userID, domain, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// SaveUserData replaces the file for domain with v.
func (s *Store) SaveUserData(userID, domain string, v any) error {
	if !validDomain(domain) {
		return fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return WriteJSON(filepath.Join(s.UserDir(userID), domain+".json"), v)
}

func (s *Store) GetAccount(userID string) (Account, error) {
	var a Account
	err := s.read(userID, DomainAccount, &a)
	if a.UserID == "" {
		a.UserID = userID
	}
	return a, err
}

func (s *Store) GetPreferences(userID string) (Preferences, error) {
	var p Preferences
	err := s.read(userID, DomainPreferences, &p)
	return p, err
}

// GetScheduleTimePeriods returns the named periods for category, with each
// period's Name filled in. An unknown category yields an empty map.
func (s *Store) GetScheduleTimePeriods(userID, category string) (map[string]TimePeriod, error) {
	var all map[string]CategorySchedule
	if err := s.read(userID, DomainSchedules, &all); err != nil {
		return nil, err
	}
	periods := all[category].Periods
	out := make(map[string]TimePeriod, len(periods))
	for name, p := range periods {
		p.Name = name
		out[name] = p
	}
	return out, nil
}

// LoadMessages returns the message library for category. Per-user files
// under messages/ win over the shared <dir>/messages/<category>.json.
func (s *Store) LoadMessages(userID, category string) ([]Message, error) {
	candidates := []string{
		filepath.Join(s.UserDir(userID), "messages", category+".json"),
		filepath.Join(s.dir, "messages", category+".json"),
	}
	for _, path := range candidates {
		var mf messageFile
		err := ReadJSON(path, &mf)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return mf.Messages, nil
	}
	return nil, nil
}

func (s *Store) read(userID, domain string, v any) error {
	if !validDomain(domain) {
		return fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	if strings.TrimSpace(userID) == "" {
		return ErrUnknownUser
	}
	if _, err := os.Stat(s.UserDir(userID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return err
	}
	err := ReadJSON(filepath.Join(s.UserDir(userID), domain+".json"), v)
	if errors.Is(err, fs.ErrNotExist) {
		// Missing domain files read as empty documents.
		return nil
	}
	return err
}

func validDomain(d string) bool {
	switch d {
	case DomainAccount, DomainPreferences, DomainSchedules:
		return true
	}
	return false
}

// ReadJSON decodes the file at path into v.
func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON writes v as indented JSON through a temp file and rename.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DaysInclude reports whether a day set applies on wd. An empty set and
// "ALL" match every day; names compare case-insensitively on their first
// three letters.
func DaysInclude(days []string, wd time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	want := strings.ToLower(wd.String()[:3])
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "all" {
			return true
		}
		if len(d) >= 3 && d[:3] == want {
			return true
		}
	}
	return false
}
