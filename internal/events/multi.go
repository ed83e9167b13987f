package events

import (
	"context"
	"errors"
)

// Multi fans every event out to each publisher in order. A failing
// publisher does not stop the others.
func Multi(pubs ...Publisher) Publisher {
	switch len(pubs) {
	case 0:
		return NopPublisher{}
	case 1:
		return pubs[0]
	}
	return multiPublisher(pubs)
}

type multiPublisher []Publisher

func (m multiPublisher) Publish(ctx context.Context, ev RiskUpdated) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
