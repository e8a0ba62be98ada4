package handlers

import (
	"sync"
	"time"
)

type inputState int

const (
	stateIdle inputState = iota
	stateManualDescription
	stateManualDatetime
	stateTimezone
)

// session is the per-user input the bot is waiting for.
type session struct {
	State       inputState
	Description string
	ExpiresAt   time.Time
}

const sessionTimeout = 15 * time.Minute

type sessions struct {
	mu  sync.Mutex
	m   map[int64]*session
	now func() time.Time
}

func newSessions(now func() time.Time) *sessions {
	return &sessions{m: make(map[int64]*session), now: now}
}

// get returns a copy of the user's live session; expired ones are dropped.
func (s *sessions) get(userID int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.m[userID]
	if !ok {
		return session{}
	}
	if s.now().After(cur.ExpiresAt) {
		delete(s.m, userID)
		return session{}
	}
	return *cur
}

func (s *sessions) set(userID int64, state inputState, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = &session{
		State:       state,
		Description: description,
		ExpiresAt:   s.now().Add(sessionTimeout),
	}
}

// clear drops the session and reports what the user was doing.
func (s *sessions) clear(userID int64) inputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[userID]
	delete(s.m, userID)
	if !ok || s.now().After(cur.ExpiresAt) {
		return stateIdle
	}
	return cur.State
}
