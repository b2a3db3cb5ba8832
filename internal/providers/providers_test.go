package providers

import (
	"errors"
	"testing"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no result", ErrNoResult, false},
		{"rate limit", &StatusError{Provider: "x", Code: 429}, true},
		{"server error", &StatusError{Provider: "x", Code: 503}, true},
		{"bad request", &StatusError{Provider: "x", Code: 400}, false},
		{"not found", &StatusError{Provider: "x", Code: 404}, false},
		{"transport", errors.New("connection refused"), true},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWeatherConditionMapping(t *testing.T) {
	if got := weatherCondition(0); got != "clear" {
		t.Errorf("code 0: got %q", got)
	}
	if got := weatherCondition(63); got != "rain" {
		t.Errorf("code 63: got %q", got)
	}
	if got := weatherCondition(99); got != "thunderstorm" {
		t.Errorf("code 99: got %q", got)
	}
}
