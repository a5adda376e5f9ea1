package ftpclient

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gonzalop/ftp"
)

// Kind classifies a session or transfer failure. It replaces an
// exception-class hierarchy with a single discriminated error type.
type Kind int

const (
	KindConnection Kind = iota
	KindAuth
	KindTimeout
	KindNotFound
	KindPermission
	KindInvalidPath
	KindDownload
)

// String returns the kind's short name.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuth:
		return "authentication"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not found"
	case KindPermission:
		return "permission"
	case KindInvalidPath:
		return "invalid path"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

func (k Kind) defaultMessage() string {
	switch k {
	case KindConnection:
		return "cannot connect"
	case KindAuth:
		return "credentials rejected"
	case KindTimeout:
		return "connection timed out"
	case KindNotFound:
		return "remote path does not exist"
	case KindPermission:
		return "local write permission denied"
	case KindInvalidPath:
		return "invalid local path"
	case KindDownload:
		return "transfer failed"
	default:
		return "error"
	}
}

// Error carries a failure kind, a user-facing message and the underlying
// cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError builds an Error, filling in the kind's default message when msg
// is empty.
func NewError(kind Kind, msg string, err error) *Error {
	if msg == "" {
		msg = kind.defaultMessage()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// classifyDial maps a connection-establishment failure onto the taxonomy.
func classifyDial(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, "", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, "", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewError(KindConnection, "cannot resolve host", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host"):
		return NewError(KindConnection, "cannot resolve host", err)
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		return NewError(KindTimeout, "", err)
	}
	return NewError(KindConnection, "cannot connect", err)
}

// classifyLogin maps an authentication failure. FTP rejects credentials
// with a 530 reply.
func classifyLogin(err error) *Error {
	var proto *ftp.ProtocolError
	if errors.As(err, &proto) {
		if proto.Code == 530 || proto.Code == 430 || proto.Code == 332 {
			return NewError(KindAuth, "", err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "login") || strings.Contains(msg, "password") {
		return NewError(KindAuth, "", err)
	}
	return classifyDial(err)
}

// ClassifyRemote maps a post-login command failure: 550-class replies and
// "no such file" texts become KindNotFound, everything else keeps its
// fallback kind. Exported for the transfer engine, which classifies RETR
// failures the same way the session classifies LIST failures.
func ClassifyRemote(err error, fallback Kind) *Error {
	var proto *ftp.ProtocolError
	if errors.As(err, &proto) {
		if proto.Code == 550 {
			return NewError(KindNotFound, "", err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such file") || strings.Contains(msg, "no such directory") ||
		strings.Contains(msg, "not found") {
		return NewError(KindNotFound, "", err)
	}
	return NewError(fallback, "", err)
}
