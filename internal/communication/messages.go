package communication

import (
	"fmt"
	"strings"

	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
	logx "remindbot/pkg/logx"
)

var fallbackMessages = map[string]string{
	userdata.CategoryCheckin: "How are you doing today? Take a minute to check in.",
	"motivational":           "You've got this. One step at a time.",
	"health":                 "Quick reminder to drink some water and stretch.",
}

const defaultFallback = "Thinking of you. Have a good day."

// FallbackMessage is used when a category has no usable library entry.
func FallbackMessage(category string) string {
	if s, ok := fallbackMessages[category]; ok {
		return s
	}
	return defaultFallback
}

// pickMessage draws a random library message valid today.
func (m *Manager) pickMessage(userID, category string) string {
	if m.users == nil {
		return FallbackMessage(category)
	}
	msgs, err := m.users.LoadMessages(userID, category)
	if err != nil {
		m.log.Warn("loading messages failed; using fallback", logx.String("user", userID), logx.String("category", category), logx.Err(err))
		return FallbackMessage(category)
	}
	wd := m.now().In(m.cfg.Timezone).Weekday()
	valid := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Text) == "" || !userdata.DaysInclude(msg.Days, wd) {
			continue
		}
		valid = append(valid, msg.Text)
	}
	if len(valid) == 0 {
		return FallbackMessage(category)
	}
	m.rmu.Lock()
	i := m.rng.Intn(len(valid))
	m.rmu.Unlock()
	return valid[i]
}

// FormatTaskReminder renders the reminder text for t.
func FormatTaskReminder(t tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task reminder: %s", strings.TrimSpace(t.Title))
	if p := strings.TrimSpace(t.Priority); p != "" {
		fmt.Fprintf(&b, "\nPriority: %s", p)
	}
	if d := strings.TrimSpace(t.DueDate); d != "" {
		fmt.Fprintf(&b, "\nDue: %s", d)
	}
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&b, "\n%s", d)
	}
	return b.String()
}
