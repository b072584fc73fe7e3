package ledger

import (
	"time"
)

// Unlimited disables a daily cap.
const Unlimited = -1

type Rewards struct {
	AdWatch     int64
	MicroTask   int64
	Invite      int64
	DailyLogin  int64
	WelcomeGift int64
}

type Limits struct {
	MaxAdsPerDay    int
	MaxTasksPerDay  int
	MaxLoginsPerDay int
	// MaxInvites is shown to users; it only rejects attributions when
	// EnforceMaxInvites is set.
	MaxInvites        int
	EnforceMaxInvites bool
}

type Task struct {
	ID       int
	Title    string
	Reward   int64
	Duration string
}

// Settings is the read-only configuration of the ledger core.
type Settings struct {
	Rewards      Rewards
	Limits       Limits
	Tasks        []Task
	Location     *time.Location
	RecentWindow int
}

func DefaultTasks() []Task {
	return []Task{
		{ID: 1, Title: "Complete a survey", Reward: 5, Duration: "2 minutes"},
		{ID: 2, Title: "Watch a tutorial", Reward: 8, Duration: "3 minutes"},
		{ID: 3, Title: "Test a feature", Reward: 10, Duration: "5 minutes"},
		{ID: 4, Title: "Rate our service", Reward: 3, Duration: "1 minute"},
		{ID: 5, Title: "Share feedback", Reward: 7, Duration: "2 minutes"},
	}
}

func DefaultSettings() Settings {
	return Settings{
		Rewards: Rewards{
			AdWatch:     10,
			MicroTask:   5,
			Invite:      50,
			DailyLogin:  20,
			WelcomeGift: 10,
		},
		Limits: Limits{
			MaxAdsPerDay:    10,
			MaxTasksPerDay:  5,
			MaxLoginsPerDay: 1,
			MaxInvites:      20,
		},
		Tasks:        DefaultTasks(),
		Location:     time.UTC,
		RecentWindow: 5,
	}
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s Settings) task(id int) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
