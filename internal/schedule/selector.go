package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"remindbot/internal/tasks"
)

// RandSource is the subset of *math/rand.Rand the scheduler draws from.
type RandSource interface {
	Intn(n int) int
	Float64() float64
}

// Selector picks one task out of a non-empty list.
type Selector interface {
	Select(list []tasks.Task) (*tasks.Task, error)
}

var ErrNoWeight = errors.New("schedule: task weights sum to zero")

// PriorityWeight maps a priority label to its weight. Unknown labels get
// the lowest weight.
func PriorityWeight(priority string) float64 {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "critical":
		return 3.0
	case "high":
		return 2.0
	case "medium":
		return 1.0
	case "low":
		return 0.5
	default:
		return 0.3
	}
}

const (
	dueTodayWeight   = 2.5
	noDueDateWeight  = 0.9
	neutralDueWeight = 1.0
	overdueGrowth    = 1.3
	overdueMaxDays   = 14
	weekStartWeight  = 2.2
	weekStep         = 0.15
	monthStartWeight = 1.3
	monthSpan        = 0.3
	monthDays        = 23 // days 8..30
)

// DueDateWeight weighs a "YYYY-MM-DD" due date relative to today.
// Overdue tasks grow exponentially with days overdue (capped), due-today
// tasks get the highest non-overdue weight, and the weight then decreases
// over the next week and, more gently, the rest of the month.
func DueDateWeight(due string, today time.Time) float64 {
	due = strings.TrimSpace(due)
	if due == "" {
		return noDueDateWeight
	}
	d, err := time.ParseInLocation("2006-01-02", due, today.Location())
	if err != nil {
		return neutralDueWeight
	}
	y, m, dd := today.Date()
	midnight := time.Date(y, m, dd, 0, 0, 0, 0, today.Location())
	days := int(math.Round(d.Sub(midnight).Hours() / 24))

	switch {
	case days < 0:
		over := min(-days, overdueMaxDays)
		return dueTodayWeight * math.Pow(overdueGrowth, float64(over))
	case days == 0:
		return dueTodayWeight
	case days <= 7:
		return weekStartWeight - weekStep*float64(days-1)
	case days <= 30:
		return monthStartWeight - monthSpan*float64(days-7)/monthDays
	default:
		return neutralDueWeight
	}
}

// Weight is the selection weight of t on the given day.
func Weight(t tasks.Task, today time.Time) float64 {
	return PriorityWeight(t.Priority) * DueDateWeight(t.DueDate, today)
}

// WeightedSelector draws proportionally to Weight.
type WeightedSelector struct {
	Rand  RandSource
	Today func() time.Time
}

func (s WeightedSelector) Select(list []tasks.Task) (*tasks.Task, error) {
	if len(list) == 0 {
		return nil, nil
	}
	today := s.Today()
	weights := make([]float64, len(list))
	var total float64
	for i, t := range list {
		w := Weight(t, today)
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, fmt.Errorf("schedule: bad weight %v for task %q", w, t.ID)
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, ErrNoWeight
	}
	r := s.Rand.Float64() * total
	for i, w := range weights {
		if r < w {
			return &list[i], nil
		}
		r -= w
	}
	// Float rounding can leave r just past the last bucket.
	return &list[len(list)-1], nil
}

// UniformSelector picks uniformly at random.
type UniformSelector struct {
	Rand RandSource
}

func (s UniformSelector) Select(list []tasks.Task) (*tasks.Task, error) {
	if len(list) == 0 {
		return nil, nil
	}
	return &list[s.Rand.Intn(len(list))], nil
}

// FallbackSelector tries Primary and falls back to Secondary when Primary
// fails or panics.
type FallbackSelector struct {
	Primary    Selector
	Secondary  Selector
	OnFallback func(err error)
}

func (s FallbackSelector) Select(list []tasks.Task) (*tasks.Task, error) {
	t, err := safeSelect(s.Primary, list)
	if err == nil && t != nil {
		return t, nil
	}
	if err == nil {
		err = errors.New("schedule: primary selector returned nothing")
	}
	if s.OnFallback != nil {
		s.OnFallback(err)
	}
	return safeSelect(s.Secondary, list)
}

func safeSelect(sel Selector, list []tasks.Task) (t *tasks.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("schedule: selector panicked: %v", r)
		}
	}()
	return sel.Select(list)
}

// NewTaskSelector returns the default weighted-then-uniform selector.
func NewTaskSelector(rng RandSource, today func() time.Time, onFallback func(error)) Selector {
	return FallbackSelector{
		Primary:    WeightedSelector{Rand: rng, Today: today},
		Secondary:  UniformSelector{Rand: rng},
		OnFallback: onFallback,
	}
}

// SelectTask applies sel with the fixed edge cases: nil for an empty list
// and the only element, without any draw, for a single-element list.
func SelectTask(sel Selector, list []tasks.Task) *tasks.Task {
	switch len(list) {
	case 0:
		return nil
	case 1:
		t := list[0]
		return &t
	}
	t, err := sel.Select(list)
	if err != nil {
		return nil
	}
	return t
}
