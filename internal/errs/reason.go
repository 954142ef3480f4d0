package errs

import (
	"errors"
	"fmt"
	"syscall"
)

// Reason renders an error the way the report's failures.csv wants it:
// a timeout becomes "TIMEOUT" plus any detail, an OS-level error with a
// numeric code becomes its errno symbol, and anything else becomes
// "<Kind>: <message>".
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		if te.Msg != "" {
			return "TIMEOUT " + te.Msg
		}
		return "TIMEOUT"
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errnoName(errno)
	}

	return fmt.Sprintf("%s: %s", kindName(err), err.Error())
}

func kindName(err error) string {
	switch err.(type) {
	case *ConfigError:
		return "ConfigError"
	case *InventoryError:
		return "InventoryError"
	case *AuthError:
		return "AuthError"
	case *TransportError:
		return "TransportError"
	case *JumpHostError:
		return "JumpHostError"
	case *ProtocolError:
		return "ProtocolError"
	default:
		return fmt.Sprintf("%T", err)
	}
}

// errnoName maps a handful of common syscall errno values to their
// symbolic name, mirroring Python's errno.errorcode lookup table used
// by the original report renderer.
func errnoName(errno syscall.Errno) string {
	switch errno {
	case syscall.ECONNREFUSED:
		return "ECONNREFUSED"
	case syscall.ECONNRESET:
		return "ECONNRESET"
	case syscall.ETIMEDOUT:
		return "ETIMEDOUT"
	case syscall.EHOSTUNREACH:
		return "EHOSTUNREACH"
	case syscall.ENETUNREACH:
		return "ENETUNREACH"
	case syscall.EPIPE:
		return "EPIPE"
	case syscall.EACCES:
		return "EACCES"
	default:
		return errno.Error()
	}
}
