// Package serial gives a WeighingWorker scoped, exclusive ownership of one
// Suwol1000 indicator's serial port: open once, write whole frames, read
// framed responses delimited by ETX, and surface link-loss distinctly from
// a bare read timeout so the worker can decide whether to stay connected
// or recover the port.
package serial

import (
	"errors"
	"time"

	goserial "github.com/daedaluz/goserial"
)

// defaultReadTimeout bounds a single read_frame() call, per spec.md §4.2.
const defaultReadTimeout = 1 * time.Second

// ErrTimeout reports that no (or only a partial) frame arrived within the
// read timeout. It is transient: the caller should stay connected and
// retry.
var ErrTimeout = errors.New("serial: read timeout")

// ErrLinkLost reports that the port itself is gone (unplugged, hung up,
// or the underlying syscall failed in a way that isn't a timeout). The
// caller should close the link and reconnect.
var ErrLinkLost = errors.New("serial: link lost")

// Link owns one open Suwol1000 serial port. A Link is not safe for
// concurrent use; spec.md assigns exclusive ownership to a single
// WeighingWorker goroutine.
type Link struct {
	port        *goserial.Port
	readTimeout time.Duration
}

// Open opens name at the indicator's fixed serial settings (9600 8N1, raw
// mode, no flow control) and discards any input already buffered from a
// previous session.
func Open(name string) (*Link, error) {
	opts := goserial.NewOptions().SetReadTimeout(defaultReadTimeout)
	port, err := goserial.Open(name, opts)
	if err != nil {
		return nil, wrapLinkErr(err)
	}

	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, wrapLinkErr(err)
	}
	attrs.MakeRaw()
	attrs.SetSpeed(goserial.B9600)
	if err := port.SetAttr2(goserial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, wrapLinkErr(err)
	}

	link := &Link{port: port, readTimeout: defaultReadTimeout}
	if err := link.ResetInput(); err != nil {
		port.Close()
		return nil, err
	}
	return link, nil
}

// ResetInput discards any buffered, unread input on the port.
func (l *Link) ResetInput() error {
	if err := l.port.Flush(goserial.TCIFLUSH); err != nil {
		return wrapLinkErr(err)
	}
	return nil
}

// Write blocks until frame has been written in full.
func (l *Link) Write(frame []byte) error {
	n, err := l.port.Write(frame)
	if err != nil {
		return wrapLinkErr(err)
	}
	if n != len(frame) {
		return ErrLinkLost
	}
	return nil
}

// ReadFrame reads until and including an ETX byte, or until the read
// timeout elapses. On timeout with no bytes read at all it returns
// ErrTimeout. On timeout with a partial frame already read, it returns
// what it has so the codec can reject it as malformed, matching
// spec.md §4.2 ("on timeout with partial data, return what was read").
func (l *Link) ReadFrame(etx byte) ([]byte, error) {
	var frame []byte
	chunk := make([]byte, 64)
	deadline := time.Now().Add(l.readTimeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if len(frame) == 0 {
				return nil, ErrTimeout
			}
			return frame, nil
		}

		n, err := l.port.ReadTimeout(chunk, remaining)
		if err != nil {
			if isTimeout(err) {
				if len(frame) == 0 {
					return nil, ErrTimeout
				}
				return frame, nil
			}
			return nil, wrapLinkErr(err)
		}
		if n == 0 {
			if len(frame) == 0 {
				return nil, ErrTimeout
			}
			return frame, nil
		}

		frame = append(frame, chunk[:n]...)
		if chunk[n-1] == etx {
			return frame, nil
		}
	}
}

// Close is idempotent: closing an already-closed link is not an error.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if err != nil && !errors.Is(err, goserial.ErrClosed) {
		return wrapLinkErr(err)
	}
	return nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return errors.Is(err, ErrTimeout)
}

func wrapLinkErr(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err}
}

// Error wraps an underlying transport failure as ErrLinkLost for callers
// using errors.Is.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "serial: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Is(target error) bool { return target == ErrLinkLost }
