package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/tasks"
	logx "remindbot/pkg/logx"
)

func TestSelectTaskEdgeCases(t *testing.T) {
	rng := &countingRand{t: t}
	sel := NewTaskSelector(rng, func() time.Time { return baseNow }, nil)

	assert.Nil(t, SelectTask(sel, nil))
	assert.Nil(t, SelectTask(sel, []tasks.Task{}))

	only := tasks.Task{ID: "t1", Priority: "low"}
	got := SelectTask(sel, []tasks.Task{only})
	require.NotNil(t, got)
	assert.Equal(t, only, *got)
	assert.Zero(t, rng.draws)
}

func TestManagerSelectTaskForReminderSingleIsDeterministic(t *testing.T) {
	rng := &countingRand{t: t}
	m := New(Deps{Users: newFakeUsers(), Rand: rng, Now: func() time.Time { return baseNow }}, Config{}, logx.Nop())

	assert.Nil(t, m.SelectTaskForReminder(nil))
	got := m.SelectTaskForReminder([]tasks.Task{{ID: "only"}})
	require.NotNil(t, got)
	assert.Equal(t, "only", got.ID)
	assert.Zero(t, rng.draws)
}

func TestPriorityWeightOrdering(t *testing.T) {
	order := []string{"critical", "high", "medium", "low", "none"}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, PriorityWeight(order[i-1]), PriorityWeight(order[i]), "%s > %s", order[i-1], order[i])
	}
	assert.Equal(t, PriorityWeight("High"), PriorityWeight("high"))
	assert.Equal(t, PriorityWeight("none"), PriorityWeight("???"))
	assert.Equal(t, PriorityWeight("none"), PriorityWeight(""))
}

func TestDueDateWeight(t *testing.T) {
	today := baseNow
	day := func(offset int) string { return today.AddDate(0, 0, offset).Format("2006-01-02") }

	assert.InDelta(t, 2.5, DueDateWeight(day(0), today), 1e-9)
	assert.InDelta(t, 2.5*1.3, DueDateWeight(day(-1), today), 1e-9)
	assert.Greater(t, DueDateWeight(day(-5), today), DueDateWeight(day(-1), today))
	assert.InDelta(t, DueDateWeight(day(-14), today), DueDateWeight(day(-40), today), 1e-9)

	prev := DueDateWeight(day(0), today)
	for d := 1; d <= 30; d++ {
		w := DueDateWeight(day(d), today)
		assert.Less(t, w, prev, "day %d", d)
		prev = w
	}
	assert.InDelta(t, 1.0, DueDateWeight(day(45), today), 1e-9)

	assert.InDelta(t, 0.9, DueDateWeight("", today), 1e-9)
	assert.InDelta(t, 1.0, DueDateWeight("next tuesday", today), 1e-9)
	assert.Less(t, Weight(tasks.Task{Priority: "high"}, today), Weight(tasks.Task{Priority: "high", DueDate: day(45)}, today))
}

func TestWeightedSelectionFavorsCritical(t *testing.T) {
	list := []tasks.Task{
		{ID: "critical", Priority: "critical"},
		{ID: "high", Priority: "high"},
		{ID: "medium", Priority: "medium"},
		{ID: "low", Priority: "low"},
	}
	sel := NewTaskSelector(rand.New(rand.NewSource(7)), func() time.Time { return baseNow }, nil)

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		got := SelectTask(sel, list)
		require.NotNil(t, got)
		counts[got.ID]++
	}
	for _, id := range []string{"high", "medium", "low"} {
		assert.Greater(t, counts["critical"], counts[id], "critical vs %s: %v", id, counts)
	}
}

type stubSelector struct {
	task    *tasks.Task
	err     error
	explode bool
}

func (s stubSelector) Select([]tasks.Task) (*tasks.Task, error) {
	if s.explode {
		panic("weights exploded")
	}
	return s.task, s.err
}

func TestFallbackSelector(t *testing.T) {
	list := []tasks.Task{{ID: "a"}, {ID: "b"}}
	uniform := UniformSelector{Rand: rand.New(rand.NewSource(1))}

	var fallbacks int
	sel := FallbackSelector{Primary: stubSelector{explode: true}, Secondary: uniform, OnFallback: func(error) { fallbacks++ }}
	got, err := sel.Select(list)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, []string{"a", "b"}, got.ID)

	sel.Primary = stubSelector{err: ErrNoWeight}
	got, err = sel.Select(list)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, fallbacks)

	sel.Primary = stubSelector{task: &list[1]}
	got, err = sel.Select(list)
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, 2, fallbacks)
}

// zeroRand always lands in the first bucket.
type zeroRand struct{}

func (zeroRand) Intn(int) int     { return 0 }
func (zeroRand) Float64() float64 { return 0 }

func TestWeightedSelectorDraw(t *testing.T) {
	list := []tasks.Task{{ID: "a", Priority: "low"}, {ID: "b", Priority: "critical"}}
	got, err := WeightedSelector{Rand: zeroRand{}, Today: func() time.Time { return baseNow }}.Select(list)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}
