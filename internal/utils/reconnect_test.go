package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestShouldReconnect(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
		delay    time.Duration
	}{
		{
			name:     "nil error does not reconnect",
			err:      nil,
			expected: false,
			delay:    0,
		},
		{
			name:     "canceled context does not reconnect",
			err:      context.Canceled,
			expected: false,
			delay:    0,
		},
		{
			name:     "normal closure does not reconnect",
			err:      &websocket.CloseError{Code: websocket.CloseNormalClosure},
			expected: false,
			delay:    0,
		},
		{
			name:     "going away reconnects",
			err:      &websocket.CloseError{Code: websocket.CloseGoingAway},
			expected: true,
			delay:    time.Second,
		},
		{
			name:     "abnormal closure reconnects",
			err:      &websocket.CloseError{Code: websocket.CloseAbnormalClosure},
			expected: true,
			delay:    time.Second,
		},
		{
			name:     "service restart reconnects",
			err:      &websocket.CloseError{Code: websocket.CloseServiceRestart},
			expected: true,
			delay:    time.Second,
		},
		{
			name:     "cloudflare 524 reconnects with longer backoff",
			err:      errors.New("got unexpected status 524 code"),
			expected: true,
			delay:    5 * time.Second,
		},
		{
			name:     "plain error reconnects",
			err:      errors.New("connection dropped"),
			expected: true,
			delay:    time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, delay := ShouldReconnect(tt.err)
			if got != tt.expected {
				t.Fatalf("expected shouldReconnect=%v, got %v", tt.expected, got)
			}
			if delay != tt.delay {
				t.Fatalf("expected delay=%v, got %v", tt.delay, delay)
			}
		})
	}
}
