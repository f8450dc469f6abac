package auth

import "sync"

// SessionState is what observers of a session see.
type SessionState struct {
	UserID    string `json:"userId"`
	Phone     string `json:"phoneNumber"`
	Onboarded bool   `json:"onboardingComplete"`
	SignedOut bool   `json:"signedOut"`
}

// Session is the application session behind one token. Observers are told
// when the onboarding flag flips and when the session ends.
type Session struct {
	Token string

	mu        sync.Mutex
	state     SessionState
	nextID    int
	observers map[int]func(SessionState)
}

func newSession(token, userID, phone string, onboarded bool) *Session {
	return &Session{
		Token:     token,
		state:     SessionState{UserID: userID, Phone: phone, Onboarded: onboarded},
		observers: make(map[int]func(SessionState)),
	}
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UserID
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for future changes. The returned func unregisters it.
func (s *Session) Subscribe(fn func(SessionState)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) setOnboarded(v bool) {
	s.update(func(st *SessionState) bool {
		if st.Onboarded == v {
			return false
		}
		st.Onboarded = v
		return true
	})
}

func (s *Session) end() {
	s.update(func(st *SessionState) bool {
		if st.SignedOut {
			return false
		}
		st.SignedOut = true
		return true
	})
}

// update applies fn and notifies observers outside the lock when it reports
// a change.
func (s *Session) update(fn func(*SessionState) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	st := s.state
	observers := make([]func(SessionState), 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(st)
	}
}
