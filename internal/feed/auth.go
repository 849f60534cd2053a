package feed

import "sync"

// Identity is the current-user accessor the session is built around.
type Identity interface {
	// UserID returns the authenticated user's id, or "" when anonymous.
	UserID() string
	// ForceLogout drops the identity after the server rejected it.
	ForceLogout()
}

// MemoryIdentity is an in-process Identity.
type MemoryIdentity struct {
	mu       sync.RWMutex
	id       string
	onLogout func()
}

func NewIdentity(userID string) *MemoryIdentity { return &MemoryIdentity{id: userID} }

func (m *MemoryIdentity) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// Login switches to userID. Call Session.IdentityChanged afterwards.
func (m *MemoryIdentity) Login(userID string) {
	m.mu.Lock()
	m.id = userID
	m.mu.Unlock()
}

// OnForcedLogout registers fn to run when the server invalidates the identity.
func (m *MemoryIdentity) OnForcedLogout(fn func()) {
	m.mu.Lock()
	m.onLogout = fn
	m.mu.Unlock()
}

func (m *MemoryIdentity) ForceLogout() {
	m.mu.Lock()
	m.id = ""
	fn := m.onLogout
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// RequireAuth parks action until the user authenticates and raises the auth
// prompt. Only the most recent action is kept.
func (s *Session) RequireAuth(action Action) {
	s.mu.Lock()
	a := action
	s.pendingAction = &a
	s.authPrompt = true
	s.mu.Unlock()
	if s.opts.OnAuthRequired != nil {
		s.opts.OnAuthRequired(action)
	}
}

// PendingAction returns the action waiting for authentication, if any.
func (s *Session) PendingAction() (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAction == nil {
		return Action{}, false
	}
	return *s.pendingAction, true
}

// DismissAuth drops the pending action when the user abandons the prompt.
func (s *Session) DismissAuth() {
	s.mu.Lock()
	s.pendingAction = nil
	s.authPrompt = false
	s.mu.Unlock()
}
