//go:build debug

package channel

// New returns an unbuffered channel in debug builds so every handoff is
// a rendezvous. The size argument is ignored.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
