package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/gradewise/moderation-server/internal/model"
)

// ErrUnknownUser - the directory has no profile for the requested user.
var ErrUnknownUser = errors.New("unknown user")

// Profile is the display data the platform's user directory holds for a
// user. The moderation core stores only IDs; profiles are read-model
// enrichment and never participate in moderation decisions.
type Profile struct {
	ID          model.UserID `json:"id"`
	DisplayName string       `json:"display_name"`
	Email       string       `json:"email"`
}

// Directory resolves user IDs to profiles. Implemented by the platform's
// user service; the static implementation below serves tests and local runs.
type Directory interface {
	Profile(ctx context.Context, id model.UserID) (*Profile, error)
}

// Static is an in-memory Directory.
type Static struct {
	mu       sync.RWMutex
	profiles map[model.UserID]Profile
}

// NewStatic - an empty in-memory directory.
func NewStatic() *Static {
	return &Static{profiles: make(map[model.UserID]Profile)}
}

// Put - add or replace a profile.
func (d *Static) Put(profile Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.profiles[profile.ID] = profile
}

// Profile - look the user up.
func (d *Static) Profile(_ context.Context, id model.UserID) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	profile, ok := d.profiles[id]
	if !ok {
		return nil, ErrUnknownUser
	}

	return &profile, nil
}
