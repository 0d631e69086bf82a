// Package pool tracks which avatar images are available, reserved by an
// in-flight generation, or already used.
//
// Every avatar is in exactly one partition. Transitions:
//
//	available -> reserved   Claim, ClaimRandom
//	reserved  -> available  Release
//	available|reserved -> used  MarkUsed
//	used      -> available  Recycle
package pool

import (
	"context"

	"github.com/okian/avatarcast/internal/domain/model"
)

// Pool operations.
const (
	opAdd      = "add"
	opClaim    = "claim"
	opRelease  = "release"
	opMarkUsed = "mark_used"
	opRecycle  = "recycle"
)

// Stats reports the size of each partition.
type Stats struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Used      int `json:"used"`
}

// Total returns the number of known avatars.
func (s Stats) Total() int { return s.Available + s.Reserved + s.Used }

// Pool is the avatar pool. Implementations are safe for concurrent use and
// every transition is atomic.
type Pool interface {
	// PickRandomAvailable returns a uniformly random available avatar
	// without reserving it.
	PickRandomAvailable(ctx context.Context) (model.AvatarCandidate, error)
	// Available returns the available partition sorted by ID.
	Available(ctx context.Context) ([]model.AvatarCandidate, error)
	// Claim reserves the avatar with id.
	Claim(ctx context.Context, id string) (model.AvatarCandidate, error)
	// ClaimRandom picks and reserves a random available avatar in one step.
	ClaimRandom(ctx context.Context) (model.AvatarCandidate, error)
	// Release returns a reserved avatar to the available partition.
	Release(ctx context.Context, id string) error
	// MarkUsed consumes an avatar. A second call returns ErrAlreadyUsed.
	MarkUsed(ctx context.Context, id string) error
	// Recycle returns a used avatar to the available partition.
	Recycle(ctx context.Context, id string) error
	// Add registers a new available avatar. Known ids are left untouched.
	Add(ctx context.Context, c model.AvatarCandidate) (bool, error)
	// Stats reports partition sizes.
	Stats(ctx context.Context) (Stats, error)
}

func cloneCandidate(c model.AvatarCandidate) model.AvatarCandidate {
	if c.Tags != nil {
		c.Tags = append([]string(nil), c.Tags...)
	}
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}
