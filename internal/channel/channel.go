// Package channel wraps Go channels behind small generic interfaces so
// stream producers and their I/O loops can be decoupled, and so debug
// builds can swap in unbuffered channels for lock-step delivery.
package channel

// Receiver is the consuming side of a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender is the producing side of a channel. TrySend never blocks and
// reports whether the value was accepted.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines both sides with shutdown.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
