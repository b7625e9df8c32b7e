package userdata

import (
	"encoding/json"
	"errors"
	"strings"
)

// Domains accepted by Store.GetUserData.
const (
	DomainAccount     = "account"
	DomainPreferences = "preferences"
	DomainSchedules   = "schedules"
)

// Special categories handled outside the plain message flow.
const (
	CategoryCheckin = "checkin"
	CategoryTasks   = "tasks"
)

var (
	ErrUnknownUser   = errors.New("userdata: unknown user")
	ErrUnknownDomain = errors.New("userdata: unknown domain")
)

// Account identifies the user and where to reach them.
type Account struct {
	UserID           string       `json:"user_id"`
	InternalUsername string       `json:"internal_username,omitempty"`
	Channel          ChannelRoute `json:"channel"`
}

// ChannelRoute names the channel ("telegram", "email", "discord") and the
// channel-specific contact (chat id, address, user id).
type ChannelRoute struct {
	Type    string `json:"type"`
	Contact string `json:"contact"`
}

type Preferences struct {
	Categories      []string        `json:"categories"`
	CheckinSettings FeatureSettings `json:"checkin_settings"`
	TaskSettings    FeatureSettings `json:"task_settings"`
}

type FeatureSettings struct {
	Enabled bool `json:"enabled"`
}

// MessageCategories returns the preference categories that go through the
// randomized message flow (everything except check-ins and tasks).
func (p Preferences) MessageCategories() []string {
	out := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		c = strings.TrimSpace(c)
		if c == "" || c == CategoryCheckin || c == CategoryTasks {
			continue
		}
		out = append(out, c)
	}
	return out
}

// TimePeriod is a named daily window. Days holds weekday names (full or
// three-letter, any case) or "ALL"; an empty list means every day.
type TimePeriod struct {
	Name      string   `json:"-"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Active    bool     `json:"active"`
	Days      []string `json:"days,omitempty"`
}

// UnmarshalJSON treats a missing "active" key as active.
func (p *TimePeriod) UnmarshalJSON(b []byte) error {
	type raw struct {
		StartTime string   `json:"start_time"`
		EndTime   string   `json:"end_time"`
		Active    *bool    `json:"active"`
		Days      []string `json:"days,omitempty"`
	}
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*p = TimePeriod{StartTime: r.StartTime, EndTime: r.EndTime, Active: true, Days: r.Days}
	if r.Active != nil {
		p.Active = *r.Active
	}
	return nil
}

// CategorySchedule is one entry of schedules.json.
type CategorySchedule struct {
	Periods map[string]TimePeriod `json:"periods"`
}

// Message is one entry of a category message library.
type Message struct {
	ID   string   `json:"message_id"`
	Text string   `json:"message"`
	Days []string `json:"days,omitempty"`
}

type messageFile struct {
	Messages []Message `json:"messages"`
}
