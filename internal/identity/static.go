package identity

import (
	"context"
	"strings"
	"sync"
)

// StaticProvider serves sessions from a fixed token map. Used for local
// development and tests; profiles default to the user id as display name.
type StaticProvider struct {
	mu       sync.RWMutex
	tokens   map[string]string
	profiles map[string]Profile
}

func NewStaticProvider(tokens map[string]string) *StaticProvider {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticProvider{tokens: cp, profiles: make(map[string]Profile)}
}

// SetProfile overrides the profile returned for a user.
func (p *StaticProvider) SetProfile(profile Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.UserID] = profile
}

func (p *StaticProvider) UserIDForToken(_ context.Context, token string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	uid, ok := p.tokens[strings.TrimSpace(token)]
	if !ok || uid == "" {
		return "", ErrUnauthenticated
	}
	return uid, nil
}

func (p *StaticProvider) GetProfile(_ context.Context, userID string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNotFound
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if prof, ok := p.profiles[userID]; ok {
		return &prof, nil
	}
	return &Profile{UserID: userID, DisplayName: userID}, nil
}
