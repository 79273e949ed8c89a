package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

// statusError reports a non-success status from an upstream service.
type statusError struct {
	Code   int
	Status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %s", e.Status)
}

// doRequest executes exactly one round trip through the circuit breaker.
// Transport failures and 5xx statuses count as breaker failures; other
// statuses are handed back for the caller to map. Retry policy belongs to
// the caller (none is implemented here).
func doRequest(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, req *http.Request) (*http.Response, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req.WithContext(ctx))
		if execErr != nil {
			return nil, execErr
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, &statusError{Code: resp.StatusCode, Status: resp.Status}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}
