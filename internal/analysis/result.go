package analysis

import (
	"fmt"
	"time"
)

// FetchStatus classifies the outcome of a metrics fetch.
type FetchStatus int

const (
	// FetchFound means the service returned at least one measure.
	FetchFound FetchStatus = iota
	// FetchNotFound means the service has no data for the project.
	FetchNotFound
	// FetchTransportError means the service could not be reached or
	// answered with something unusable.
	FetchTransportError
)

func (s FetchStatus) String() string {
	switch s {
	case FetchFound:
		return "found"
	case FetchNotFound:
		return "not_found"
	case FetchTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("FetchStatus(%d)", int(s))
	}
}

// FetchResult is the tagged outcome of FetchMetrics. Snapshot is set only for
// FetchFound and Err only for FetchTransportError.
type FetchResult struct {
	Status   FetchStatus
	Snapshot Snapshot
	Err      error
}

// Found wraps a snapshot.
func Found(s Snapshot) FetchResult {
	return FetchResult{Status: FetchFound, Snapshot: s}
}

// NotFound reports that no metrics exist.
func NotFound() FetchResult {
	return FetchResult{Status: FetchNotFound}
}

// TransportError wraps a communication failure.
func TransportError(err error) FetchResult {
	return FetchResult{Status: FetchTransportError, Err: err}
}

// ScanResult is the status of one scanner run.
type ScanResult struct {
	ExitCode int
	Duration time.Duration
	Output   string
	Err      error
}

// OK reports whether the scanner exited cleanly.
func (r ScanResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}
