package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ErrorKind classifies discovery failures.
type ErrorKind int

const (
	// InterfaceListFailed leaves the scan with an empty interface list.
	InterfaceListFailed ErrorKind = iota
	// GatewayNotFound limits the scan to the local subnet with no gateway entry.
	GatewayNotFound
	// ProbeTimeout is a probe that ran out of time.
	ProbeTimeout
	// ProbeTransportError is a refused, reset or unreachable connection.
	ProbeTransportError
	// MalformedResponse is a reply nothing could be extracted from.
	MalformedResponse
	// ConfigFileMissing means the override file was absent.
	ConfigFileMissing
	// ConfigFileInvalid means the override file exists but could not be read or parsed.
	ConfigFileInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case InterfaceListFailed:
		return "InterfaceListFailed"
	case GatewayNotFound:
		return "GatewayNotFound"
	case ProbeTimeout:
		return "ProbeTimeout"
	case ProbeTransportError:
		return "ProbeTransportError"
	case MalformedResponse:
		return "MalformedResponse"
	case ConfigFileMissing:
		return "ConfigFileMissing"
	case ConfigFileInvalid:
		return "ConfigFileInvalid"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for candidate := InterfaceListFailed; candidate <= ConfigFileInvalid; candidate++ {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// DiscoveryError carries a classified failure and the operation it hit.
type DiscoveryError struct {
	Kind   ErrorKind
	Op     string
	Target string
	Err    error
}

func (e *DiscoveryError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Target != "" {
		msg += " " + e.Target
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

func (e *DiscoveryError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Kind   ErrorKind `json:"kind"`
		Op     string    `json:"op,omitempty"`
		Target string    `json:"target,omitempty"`
		Error  string    `json:"error,omitempty"`
	}{Kind: e.Kind, Op: e.Op, Target: e.Target}
	if e.Err != nil {
		payload.Error = e.Err.Error()
	}
	return json.Marshal(payload)
}

// ClassifyProbeError maps a probe failure onto the taxonomy.
func ClassifyProbeError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || os.IsTimeout(err) {
		return ProbeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProbeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return ProbeTransportError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ProbeTransportError
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ProbeTransportError
	}
	return MalformedResponse
}
