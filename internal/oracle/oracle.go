// Package oracle implements the validator risk registry.
//
// A single administrator records an 8-bit risk score per validator id and
// anyone may read it. The registry owns three pieces of state: the score
// mapping, the administrator identity and the timestamp of the last accepted
// write. Reads of a validator that was never scored return 0.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Errors
var (
	// ErrUnauthorized is returned when a mutation is attempted by anyone
	// other than the administrator, including before one was recorded.
	ErrUnauthorized = errors.New("unauthorized")

	ErrAlreadyInitialized = errors.New("registry already initialized")
	ErrInvalidCaller      = errors.New("invalid caller identity")
	ErrInvalidValidator   = errors.New("validator id is required")
)

// Entry is a single validator score.
type Entry struct {
	ValidatorID string `json:"validator"`
	Score       uint8  `json:"score"`
}

// Snapshot is the complete persisted state of a registry.
type Snapshot struct {
	Admin      common.Address
	HasAdmin   bool
	Scores     map[string]uint8
	LastUpdate time.Time
}

// Update describes an accepted write. It is handed to listeners in the
// order writes were applied.
type Update struct {
	ValidatorID string
	Score       uint8
	Previous    uint8
	HadPrevious bool
	Admin       common.Address
	At          time.Time
}

// Store persists registry state.
type Store interface {
	// Load returns the full persisted state. An empty store returns a
	// snapshot with HasAdmin false and an empty mapping.
	Load(ctx context.Context) (*Snapshot, error)

	// SetAdmin records the administrator. It returns ErrAlreadyInitialized
	// if one is already stored.
	SetAdmin(ctx context.Context, admin common.Address) error

	// PutScore writes the score and the last-update timestamp as one
	// atomic unit: either both are stored or neither is.
	PutScore(ctx context.Context, validatorID string, score uint8, at time.Time) error

	Ping(ctx context.Context) error
}

// Clock supplies the host time used for last-update timestamps.
type Clock func() time.Time

// Listener observes accepted writes. Listeners run while the registry write
// lock is held and must not block.
type Listener func(Update)
