package channel

// Buffered carries up to size values between producer and consumer.
type Buffered[T any] struct {
	ch chan T
}

// NewBuffered returns a channel with the given capacity.
func NewBuffered[T any](size int) *Buffered[T] {
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send delivers v, blocking while the buffer is full.
func (b *Buffered[T]) Send(v T) {
	b.ch <- v
}

// TrySend delivers v unless the buffer is full. It never blocks.
func (b *Buffered[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

// Receive exposes the consuming side.
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len reports how many values are buffered.
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Close ends the channel. Senders must be done first.
func (b *Buffered[T]) Close() {
	close(b.ch)
}
