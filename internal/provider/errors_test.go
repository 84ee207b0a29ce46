package provider

import (
	"net/http"
	"testing"
)

func TestAPIErrorString(t *testing.T) {
	e := &APIError{StatusCode: 429, ErrorType: "rate_limit_error", Message: "slow down"}
	if got := e.Error(); got != "rate_limit_error: slow down" {
		t.Errorf("Error() = %q", got)
	}
	e = &APIError{StatusCode: 500, Message: "oops"}
	if got := e.Error(); got != "HTTP 500: oops" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  APIError
		want bool
	}{
		{APIError{StatusCode: 429}, true},
		{APIError{StatusCode: 503}, true},
		{APIError{StatusCode: 529}, true},
		{APIError{StatusCode: 400}, false},
		{APIError{StatusCode: 200, ErrorType: "overloaded_error"}, true},
		{APIError{StatusCode: 401, ErrorType: "authentication_error"}, false},
	}
	for _, c := range cases {
		if got := c.err.IsRetryable(); got != c.want {
			t.Errorf("IsRetryable(%+v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after-ms", "250")
	if got := parseRetryAfter(h); got != 250 {
		t.Errorf("retry-after-ms parse = %d", got)
	}

	h = http.Header{}
	h.Set("Retry-After", "3")
	if got := parseRetryAfter(h); got != 3000 {
		t.Errorf("Retry-After seconds parse = %d", got)
	}

	if got := parseRetryAfter(nil); got != 0 {
		t.Errorf("nil header parse = %d", got)
	}
}
