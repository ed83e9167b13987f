// Package events publishes accepted risk updates to a message broker.
//
// The registry hands every accepted write to a Dispatcher, which queues it
// without blocking and publishes from a single worker so events leave in
// write order. Events are keyed by validator id.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/riskoracle/internal/oracle"
)

// TypeRiskUpdated is the event type of RiskUpdated.
const TypeRiskUpdated = "risk.updated"

// RiskUpdated is published for every accepted score write.
type RiskUpdated struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ValidatorID string    `json:"validator"`
	Score       uint8     `json:"score"`
	Previous    *uint8    `json:"previous,omitempty"`
	Admin       string    `json:"admin"`
	At          time.Time `json:"at"`
}

// NewRiskUpdated builds the event for an accepted update.
func NewRiskUpdated(u oracle.Update) RiskUpdated {
	ev := RiskUpdated{
		ID:          uuid.NewString(),
		Type:        TypeRiskUpdated,
		ValidatorID: u.ValidatorID,
		Score:       u.Score,
		Admin:       u.Admin.Hex(),
		At:          u.At.UTC(),
	}
	if u.HadPrevious {
		prev := u.Previous
		ev.Previous = &prev
	}
	return ev
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, ev RiskUpdated) error
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RiskUpdated) error { return nil }
func (NopPublisher) Close() error                               { return nil }
