package transport

// Transport defines a generic interface for handing readings to display
// collaborators. Implementations should be thread-safe and must not block:
// Send is called from the analysis loop.
type Transport interface {
	Send(data any) error
	Close() error
}
