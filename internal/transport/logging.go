package transport

import (
	"fmt"

	applog "tuner/internal/log"
)

// LoggingTransport implements the Transport interface by logging data to the console.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. Values implementing fmt.Stringer are logged
// in their short form.
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case fmt.Stringer:
		applog.Infof("LOG_TRANSPORT: %s", v)
	default:
		applog.Infof("LOG_TRANSPORT: Received (%T): %+v", data, data)
	}
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
