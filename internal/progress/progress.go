// Package progress tracks the gamified post-creation meter. The tally lives
// in the persistent local cache and survives restarts; it is a per-device
// counter, not a store-replicated one.
package progress

import (
	"context"
	"strconv"
	"sync"

	"aniforum/internal/cache"
)

// TotalPosts is the top of the milestone ladder.
const TotalPosts = 1800

// Milestone is one rung of the progress ladder.
type Milestone struct {
	Name  string
	Posts int
}

// Milestones returns the ladder in ascending order.
func Milestones() []Milestone {
	return []Milestone{
		{Name: "New User", Posts: 0},
		{Name: "User", Posts: 200},
		{Name: "Moderator", Posts: 500},
		{Name: "Teacher", Posts: 1000},
		{Name: "Administrator", Posts: 1800},
	}
}

// Meter counts posts created on this device.
type Meter struct {
	plc cache.Cache

	mu      sync.Mutex
	created int
	loaded  bool
}

// NewMeter returns a meter backed by the given cache.
func NewMeter(plc cache.Cache) *Meter {
	return &Meter{plc: plc}
}

// Load rehydrates the tally from the cache. Missing or malformed values
// start the meter at zero.
func (m *Meter) Load(ctx context.Context) error {
	raw, err := m.plc.Get(ctx, cache.KeyCreatedPosts)
	if err != nil {
		return err
	}
	count, _ := strconv.Atoi(raw)
	m.mu.Lock()
	m.created = count
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// Increment bumps the tally and persists it.
func (m *Meter) Increment(ctx context.Context) error {
	m.mu.Lock()
	m.created++
	count := m.created
	m.mu.Unlock()
	return m.plc.Set(ctx, cache.KeyCreatedPosts, strconv.Itoa(count))
}

// Created returns the current tally.
func (m *Meter) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Current returns the highest milestone reached.
func (m *Meter) Current() Milestone {
	created := m.Created()
	ladder := Milestones()
	current := ladder[0]
	for _, milestone := range ladder {
		if created >= milestone.Posts {
			current = milestone
		}
	}
	return current
}

// Next returns the next milestone to reach, or false when the ladder is
// complete.
func (m *Meter) Next() (Milestone, bool) {
	created := m.Created()
	for _, milestone := range Milestones() {
		if created < milestone.Posts {
			return milestone, true
		}
	}
	return Milestone{}, false
}
