package gpio

// error definitions
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrPinBusy         = Error("pin already acquired")
	ErrPinNotAcquired  = Error("pin not acquired by this handle")
	ErrWrongDirection  = Error("pin direction does not allow this operation")
	ErrReleased        = Error("handle already released")
	ErrDuplicatePin    = Error("pin listed more than once")
	ErrUnknownDriver   = Error("unknown gpio driver")
	ErrNotConnected    = Error("not connected")
	ErrInvalidResponse = Error("invalid response")
	ErrUnsupported     = Error("driver not supported on this platform")
	ErrNoReply         = Error("no reply")
	ErrEchoRise        = Error("echo did not rise")
	ErrEchoFall        = Error("echo did not fall")
)
