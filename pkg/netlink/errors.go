package netlink

import (
	"errors"
	"fmt"
)

var (
	// ErrErrorResponse is returned when the kernel answers with NLMSG_ERROR.
	ErrErrorResponse = errors.New("netlink: error response received from kernel")

	// ErrMessageTooLarge rejects a request that does not fit the maximum
	// message size. Requests are never truncated.
	ErrMessageTooLarge = errors.New("netlink: message exceeds maximum message size")

	// ErrUnsupported is returned by Dial on platforms without netlink.
	ErrUnsupported = errors.New("netlink: generic netlink requires linux")
)

// ProtocolError reports a received message that failed structural
// validation. Sizes that do not apply to the failed check are zero.
type ProtocolError struct {
	Reason   string
	Declared int
	Received int
	Capacity int
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("netlink: corrupted message: %s (declared %d, received %d", e.Reason, e.Declared, e.Received)
	if e.Capacity > 0 {
		msg += fmt.Sprintf(", capacity %d", e.Capacity)
	}
	return msg + ")"
}

// IOError wraps a failure from the underlying socket.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("netlink: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
