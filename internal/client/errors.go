package client

import (
	"errors"
	"fmt"
	"strings"
)

// RequestFailed is returned when the service answers with a non-success status
type RequestFailed struct {
	Resource   string
	StatusCode int
}

func (e *RequestFailed) Error() string {
	return fmt.Sprintf("%s: request failed with status %d", e.Resource, e.StatusCode)
}

// NetworkUnreachable is returned when the request could not complete
type NetworkUnreachable struct {
	Resource string
	Err      error
}

func (e *NetworkUnreachable) Error() string {
	return fmt.Sprintf("%s: network unreachable: %v", e.Resource, e.Err)
}

func (e *NetworkUnreachable) Unwrap() error {
	return e.Err
}

// InvalidPayload is returned when a response does not decode or breaks its contract
type InvalidPayload struct {
	Resource string
	Problems []string
	Err      error
}

func (e *InvalidPayload) Error() string {
	return fmt.Sprintf("%s: invalid payload: %s", e.Resource, strings.Join(e.Problems, "; "))
}

func (e *InvalidPayload) Unwrap() error {
	return e.Err
}

// Resource returns the resource name carried by a fetch error, or "" for other errors.
func Resource(err error) string {
	var rf *RequestFailed
	if errors.As(err, &rf) {
		return rf.Resource
	}
	var nu *NetworkUnreachable
	if errors.As(err, &nu) {
		return nu.Resource
	}
	var ip *InvalidPayload
	if errors.As(err, &ip) {
		return ip.Resource
	}
	return ""
}

// Message is the generic text shown in place of a section whose fetch failed.
// Every failure kind renders the same way.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if r := Resource(err); r != "" {
		return fmt.Sprintf("failed to load %s", strings.ReplaceAll(r, "_", " "))
	}
	return "failed to load data"
}
