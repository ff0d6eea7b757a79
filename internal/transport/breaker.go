package transport

import (
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/logging"
)

// serverError marks a 5xx answer so the breaker counts it as a failure while
// the response itself still reaches the caller.
type serverError struct {
	resp *http.Response
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: status %d", e.resp.StatusCode)
}

// breakerTransport trips after consecutive transport failures or 5xx answers.
// Once open, calls fail immediately with gobreaker.ErrOpenState; nothing is retried.
type breakerTransport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func newBreakerTransport(base http.RoundTripper, threshold uint32) *breakerTransport {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "port-catalog",
		MaxRequests: constants.BreakerHalfOpenRequests,
		Timeout:     constants.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return &breakerTransport{base: base, cb: cb}
}

// RoundTrip implements http.RoundTripper.
func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &serverError{resp: resp}
		}
		return resp, nil
	})
	if err != nil {
		if se, ok := err.(*serverError); ok {
			return se.resp, nil
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// State reports the breaker state.
func (t *breakerTransport) State() gobreaker.State {
	return t.cb.State()
}
