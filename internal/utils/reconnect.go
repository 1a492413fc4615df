package utils

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var ReconnectConfig = struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}{
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
}

const cloudflare524Error = "524"

// ShouldReconnect classifies a push-channel failure: whether the stream is
// worth re-dialing and after what delay. Deliberate shutdowns and canceled
// contexts never reconnect.
func ShouldReconnect(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}

	if errors.Is(err, context.Canceled) {
		return false, 0
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure:
			return false, 0
		case websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure,
			websocket.CloseInternalServerErr,
			websocket.CloseServiceRestart,
			websocket.CloseTryAgainLater:
			return true, ReconnectConfig.InitialDelay
		default:
			return true, ReconnectConfig.InitialDelay
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, ReconnectConfig.InitialDelay
	}

	// Cloudflare returns a plain 524 while the backend restarts; give it a
	// longer breather.
	if strings.Contains(err.Error(), cloudflare524Error) {
		return true, 5 * time.Second
	}

	return true, ReconnectConfig.InitialDelay
}
