package settings

import (
	"errors"
	"fmt"

	"github.com/sweeney/gatewayctl/internal/gateway"
)

// Kind classifies a failed operation.
type Kind int

const (
	// KindTransport is a network failure or timeout.
	KindTransport Kind = iota

	// KindRejected is a non-2xx response: the gateway refused the request.
	KindRejected

	// KindDecode is a 2xx response whose body was not a configuration object.
	KindDecode

	// KindDeclined means a post-push hook aborted the apply.
	KindDeclined
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindDecode:
		return "decode"
	case KindDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// Failure is the typed result of a failed Load or Push.
type Failure struct {
	Op   string
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ErrDeclined is the cause of a KindDeclined failure.
var ErrDeclined = errors.New("change not confirmed")

func classify(op string, err error) *Failure {
	var se *gateway.StatusError
	switch {
	case errors.As(err, &se):
		return &Failure{Op: op, Kind: KindRejected, Err: err}
	case errors.Is(err, gateway.ErrDecode):
		return &Failure{Op: op, Kind: KindDecode, Err: err}
	default:
		return &Failure{Op: op, Kind: KindTransport, Err: err}
	}
}
