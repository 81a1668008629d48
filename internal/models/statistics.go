package models

import (
	"fmt"
	"time"

	apperrors "github.com/zfogg/listingboard/internal/errors"
)

// Signal names one of the three interaction tallies.
type Signal string

const (
	SignalRecommend Signal = "recommend"
	SignalFavorite  Signal = "favorite"
	SignalClick     Signal = "click"
)

// ParseSignal validates a signal name taken from user input
func ParseSignal(s string) (Signal, error) {
	switch Signal(s) {
	case SignalRecommend, SignalFavorite, SignalClick:
		return Signal(s), nil
	}
	return "", fmt.Errorf("unknown signal %q: %w", s, apperrors.ErrInvalidListing)
}

// Tally is a counted set of user ids. Count always equals len(Users).
type Tally struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Contains reports whether uid is a member
func (t *Tally) Contains(uid string) bool {
	for _, u := range t.Users {
		if u == uid {
			return true
		}
	}
	return false
}

// Toggle flips uid's membership and returns whether uid is a member afterwards
func (t *Tally) Toggle(uid string) bool {
	for i, u := range t.Users {
		if u == uid {
			t.Users = append(t.Users[:i:i], t.Users[i+1:]...)
			t.Count = len(t.Users)
			return false
		}
	}
	t.Users = append(t.Users, uid)
	t.Count = len(t.Users)
	return true
}

func (t *Tally) normalize() {
	seen := make(map[string]struct{}, len(t.Users))
	users := make([]string, 0, len(t.Users))
	for _, u := range t.Users {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		users = append(users, u)
	}
	t.Users = users
	t.Count = len(users)
}

// ClickEntry records the first time a user opened a listing.
type ClickEntry struct {
	UID  string    `json:"uid"`
	Date time.Time `json:"date"`
}

// ClickTally is an append-only counted set of click entries keyed by uid.
type ClickTally struct {
	Count int          `json:"count"`
	Users []ClickEntry `json:"users"`
}

// Contains reports whether uid has clicked
func (t *ClickTally) Contains(uid string) bool {
	for _, e := range t.Users {
		if e.UID == uid {
			return true
		}
	}
	return false
}

// Record appends a click for uid unless one exists. It reports whether the tally changed.
func (t *ClickTally) Record(uid string, at time.Time) bool {
	if t.Contains(uid) {
		return false
	}
	t.Users = append(t.Users, ClickEntry{UID: uid, Date: at.UTC()})
	t.Count = len(t.Users)
	return true
}

func (t *ClickTally) normalize() {
	seen := make(map[string]struct{}, len(t.Users))
	users := make([]ClickEntry, 0, len(t.Users))
	for _, e := range t.Users {
		if e.UID == "" {
			continue
		}
		if _, dup := seen[e.UID]; dup {
			continue
		}
		seen[e.UID] = struct{}{}
		users = append(users, e)
	}
	t.Users = users
	t.Count = len(users)
}

// Statistics is the persisted interaction record of one listing. The JSON
// form has exactly the keys recommend, favorite and click.
type Statistics struct {
	Recommend Tally      `json:"recommend"`
	Favorite  Tally      `json:"favorite"`
	Click     ClickTally `json:"click"`
}

// Normalize applies zero-state defaults and restores count == len(users),
// dropping empty and duplicate uids.
func (s *Statistics) Normalize() {
	s.Recommend.normalize()
	s.Favorite.normalize()
	s.Click.normalize()
}

// Clone returns a deep copy
func (s Statistics) Clone() Statistics {
	out := Statistics{
		Recommend: Tally{Count: s.Recommend.Count, Users: append([]string{}, s.Recommend.Users...)},
		Favorite:  Tally{Count: s.Favorite.Count, Users: append([]string{}, s.Favorite.Users...)},
		Click:     ClickTally{Count: s.Click.Count, Users: append([]ClickEntry{}, s.Click.Users...)},
	}
	return out
}

// Has reports whether uid is in the tally named by signal
func (s *Statistics) Has(signal Signal, uid string) bool {
	if uid == "" {
		return false
	}
	switch signal {
	case SignalRecommend:
		return s.Recommend.Contains(uid)
	case SignalFavorite:
		return s.Favorite.Contains(uid)
	case SignalClick:
		return s.Click.Contains(uid)
	}
	return false
}

// Toggle flips uid in the recommend or favorite tally
func (s *Statistics) Toggle(signal Signal, uid string) (bool, error) {
	switch signal {
	case SignalRecommend:
		return s.Recommend.Toggle(uid), nil
	case SignalFavorite:
		return s.Favorite.Toggle(uid), nil
	}
	return false, fmt.Errorf("signal %q cannot be toggled", signal)
}

// Snapshot is a committed state of a listing's statistics. Version increases
// by one on every committed change of that listing.
type Snapshot struct {
	Ref        ListingRef `json:"listing"`
	Statistics Statistics `json:"statistics"`
	Version    int64      `json:"version"`
}
