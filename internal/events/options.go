package events

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithSubscriberBuffer sets the per-subscriber channel buffer.
func WithSubscriberBuffer(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}
