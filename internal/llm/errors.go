package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks provider errors that will not succeed on retry, such
// as exhausted quotas or bad credentials. Callers use errors.Is to stop
// background work early instead of hammering the provider.
var ErrFatalAPI = errors.New("fatal API error")

var fatalErrorMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication failed",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether an error indicates a permanent provider
// failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags permanent provider failures with ErrFatalAPI and
// passes transient errors through unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return errors.Join(ErrFatalAPI, err)
	}
	return err
}
