package channel

// Unbuffered hands values directly from sender to receiver.
type Unbuffered[T any] struct {
	ch chan T
}

// NewUnbuffered returns a rendezvous channel.
func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{ch: make(chan T)}
}

// Send delivers v, blocking until a receiver takes it.
func (u *Unbuffered[T]) Send(v T) {
	u.ch <- v
}

// TrySend delivers v only if a receiver is already waiting.
func (u *Unbuffered[T]) TrySend(v T) bool {
	select {
	case u.ch <- v:
		return true
	default:
		return false
	}
}

// Receive exposes the consuming side.
func (u *Unbuffered[T]) Receive() <-chan T {
	return u.ch
}

// Len is always zero; values are never held.
func (u *Unbuffered[T]) Len() int {
	return 0
}

// Close ends the channel. Senders must be done first.
func (u *Unbuffered[T]) Close() {
	close(u.ch)
}
