package events

import "context"

// MultiPublisher fans one event out to several publishers in order.
type MultiPublisher []Publisher

// Publish delivers to every publisher and returns the first error seen.
func (m MultiPublisher) Publish(ctx context.Context, event QueueEvent) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
