//go:build !debug

package channel

// New returns the channel used by production builds: buffered with the
// given capacity.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
