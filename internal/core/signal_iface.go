package core

// Frame is an encoded event envelope.
type Frame []byte

// ConnectionID identifies one live signalling connection.
type ConnectionID string

// SignalConnection abstracts the real-time transport of one connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking. It fails when the
	// connection is closed or its send buffer is full.
	TrySend(Frame) error
	Close()
}
