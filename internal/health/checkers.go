package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is anything that can report whether its backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports the registry's backing store as unhealthy when it
// cannot be pinged.
func StoreChecker(p Pinger) Checker {
	return func(ctx context.Context) Status {
		if err := p.Ping(ctx); err != nil {
			return Status{Name: "store", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "store", Healthy: true}
	}
}

// FreshnessChecker reports unhealthy when the last accepted update is older
// than staleAfter, which usually means the scoring agent has stopped. A
// registry that has never been written to is healthy.
func FreshnessChecker(lastUpdate func() time.Time, staleAfter time.Duration, now func() time.Time) Checker {
	if now == nil {
		now = time.Now
	}
	return func(context.Context) Status {
		last := lastUpdate()
		if last.IsZero() {
			return Status{Name: "freshness", Healthy: true, Detail: "no updates yet"}
		}
		age := now().Sub(last)
		if age > staleAfter {
			return Status{
				Name:    "freshness",
				Healthy: false,
				Detail:  fmt.Sprintf("last update %ds ago exceeds %s", int(age.Seconds()), staleAfter),
			}
		}
		return Status{Name: "freshness", Healthy: true, Detail: fmt.Sprintf("last update %ds ago", int(age.Seconds()))}
	}
}
