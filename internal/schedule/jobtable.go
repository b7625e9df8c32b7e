package schedule

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type JobKind int

const (
	KindMessage JobKind = iota
	KindCheckin
	KindTaskReminder
	KindDailyPass
)

func (k JobKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCheckin:
		return "checkin"
	case KindTaskReminder:
		return "task_reminder"
	case KindDailyPass:
		return "daily_pass"
	default:
		return "unknown"
	}
}

// ScheduledJob is one entry of a JobTable. One-shot jobs leave the table
// when they fire; recurring jobs (Recurring != nil) advance At instead.
type ScheduledJob struct {
	ID       string
	Name     string
	Kind     JobKind
	UserID   string
	Category string
	Period   string
	TaskID   string

	At        time.Time
	Recurring cron.Schedule
	Spec      string

	Run       func(ctx context.Context) error
	CreatedAt time.Time
	// Context says which operation created the job, for logs.
	Context string
}

// jobName builds the stable key for a (user, category, period) job.
func jobName(userID, category, period string) string {
	return userID + ":" + category + ":" + period
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a cron spec with optional seconds or a descriptor
// such as "@daily".
func ParseCron(spec string) (cron.Schedule, error) {
	return cronParser.Parse(strings.TrimSpace(spec))
}

// JobTable is the in-process job list owned by one Manager. It is safe for
// concurrent use; names are unique.
type JobTable struct {
	mu   sync.Mutex
	jobs map[string]*ScheduledJob
}

// NewJobTable returns an empty table.
func NewJobTable() *JobTable {
	return &JobTable{jobs: map[string]*ScheduledJob{}}
}

// Upsert stores job under job.Name, replacing any job with that name.
// It assigns an ID when missing.
func (t *JobTable) Upsert(job ScheduledJob) ScheduledJob {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	t.mu.Lock()
	t.jobs[job.Name] = &job
	t.mu.Unlock()
	return job
}

// AddRecurring stores a cron-driven job whose first run is the next
// activation after now.
func (t *JobTable) AddRecurring(name, spec string, kind JobKind, now time.Time, run func(ctx context.Context) error) (ScheduledJob, error) {
	sched, err := ParseCron(spec)
	if err != nil {
		return ScheduledJob{}, err
	}
	return t.Upsert(ScheduledJob{
		Name:      name,
		Kind:      kind,
		At:        sched.Next(now),
		Recurring: sched,
		Spec:      spec,
		Run:       run,
		CreatedAt: now,
		Context:   "recurring",
	}), nil
}

// Get returns the job called name.
func (t *JobTable) Get(name string) (ScheduledJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[name]
	if !ok {
		return ScheduledJob{}, false
	}
	return *j, true
}

// Remove deletes the job called name and reports whether it existed.
func (t *JobTable) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[name]; !ok {
		return false
	}
	delete(t.jobs, name)
	return true
}

// RemoveWhere deletes every job for which match returns true and returns them.
func (t *JobTable) RemoveWhere(match func(ScheduledJob) bool) []ScheduledJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ScheduledJob
	for name, j := range t.jobs {
		if match(*j) {
			out = append(out, *j)
			delete(t.jobs, name)
		}
	}
	return out
}

// Find returns matching jobs ordered by run time.
func (t *JobTable) Find(match func(ScheduledJob) bool) []ScheduledJob {
	t.mu.Lock()
	out := make([]ScheduledJob, 0, len(t.jobs))
	for _, j := range t.jobs {
		if match == nil || match(*j) {
			out = append(out, *j)
		}
	}
	t.mu.Unlock()
	sortJobs(out)
	return out
}

// Jobs returns every job ordered by run time.
func (t *JobTable) Jobs() []ScheduledJob { return t.Find(nil) }

// Len is the number of jobs.
func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Clear drops every job.
func (t *JobTable) Clear() {
	t.mu.Lock()
	t.jobs = map[string]*ScheduledJob{}
	t.mu.Unlock()
}

// PopDue returns jobs due at now, ordered by run time. One-shot jobs are
// removed; recurring jobs are rescheduled to their next activation.
func (t *JobTable) PopDue(now time.Time) []ScheduledJob {
	t.mu.Lock()
	var due []ScheduledJob
	for name, j := range t.jobs {
		if j.At.After(now) {
			continue
		}
		due = append(due, *j)
		if j.Recurring != nil {
			j.At = j.Recurring.Next(now)
		} else {
			delete(t.jobs, name)
		}
	}
	t.mu.Unlock()
	sortJobs(due)
	return due
}

func sortJobs(js []ScheduledJob) {
	sort.Slice(js, func(i, j int) bool {
		if !js[i].At.Equal(js[j].At) {
			return js[i].At.Before(js[j].At)
		}
		return js[i].Name < js[j].Name
	})
}
