// Package restgateway implements gateway.TransportClient over the backend's
// JSON REST API and its websocket event stream.
package restgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tessera-cash/wallet-sdk/gateway"
	"github.com/tessera-cash/wallet-sdk/types"
)

const (
	requestTimeout   = 15 * time.Second
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongInterval     = 60 * time.Second
)

type restClient struct {
	serverUrl string
	httped    *http.Client
	dialer    *websocket.Dialer

	mu      sync.Mutex
	streams []*websocket.Conn
}

func NewClient(serverUrl string) (gateway.TransportClient, error) {
	if len(serverUrl) <= 0 {
		return nil, fmt.Errorf("missing server url")
	}
	return &restClient{
		serverUrl: strings.TrimSuffix(serverUrl, "/"),
		httped:    &http.Client{Timeout: requestTimeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

func (c *restClient) GetGroupInfo(
	ctx context.Context, groupId string,
) (*types.GroupInfo, error) {
	var resp groupInfoResponse
	url := fmt.Sprintf("%s/v1/groups/%s", c.serverUrl, groupId)
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, err
	}
	return &types.GroupInfo{
		GroupId:            resp.GroupId,
		PublicKey:          resp.PublicKey,
		SettlementEndpoint: resp.SettlementEndpoint,
		IsAffiliated:       resp.IsAffiliated,
	}, nil
}

func (c *restClient) SubmitTransaction(
	ctx context.Context, endpoint string, tx *types.Transaction,
) (*types.SubmissionResult, error) {
	base := endpoint
	if base == "" {
		base = c.serverUrl
	}
	url := fmt.Sprintf("%s/v1/txs", strings.TrimSuffix(base, "/"))

	var resp submissionResponse
	if err := c.post(ctx, url, transactionToWire(*tx), &resp); err != nil {
		return nil, err
	}
	return &types.SubmissionResult{Accepted: resp.Accepted, Reason: resp.Reason}, nil
}

func (c *restClient) SubmitAggregate(
	ctx context.Context, wrapper *types.AggregateWrapper,
) (*types.SubmissionResult, error) {
	url := fmt.Sprintf("%s/v1/aggregates", c.serverUrl)

	txs := make([]txWire, 0, len(wrapper.Txs))
	for _, tx := range wrapper.Txs {
		txs = append(txs, transactionToWire(tx))
	}
	body := aggregateWire{
		Digest:         wrapper.Digest,
		Txs:            txs,
		GroupSignature: wrapper.GroupSignature,
		Timestamp:      wrapper.Timestamp,
	}

	var resp submissionResponse
	if err := c.post(ctx, url, body, &resp); err != nil {
		return nil, err
	}
	return &types.SubmissionResult{Accepted: resp.Accepted, Reason: resp.Reason}, nil
}

func (c *restClient) GetEventStream(
	ctx context.Context, address string,
) (<-chan types.ChainEvent, <-chan error, error) {
	wsUrl := toWebsocketUrl(c.serverUrl) +
		fmt.Sprintf("/v1/accounts/%s/stream", address)

	conn, _, err := c.dialer.DialContext(ctx, wsUrl, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", gateway.ErrNetworkUnavailable, err)
	}

	c.mu.Lock()
	c.streams = append(c.streams, conn)
	c.mu.Unlock()

	eventCh := make(chan types.ChainEvent, 100)
	errCh := make(chan error, 1)

	go c.keepAlive(ctx, conn)
	go func() {
		defer close(eventCh)
		defer close(errCh)
		defer conn.Close()

		if err := conn.SetReadDeadline(time.Now().Add(pongInterval)); err != nil {
			errCh <- fmt.Errorf("%w: %s", gateway.ErrNetworkUnavailable, err)
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongInterval))
		})

		for {
			var payload eventWire
			if err := conn.ReadJSON(&payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				errCh <- fmt.Errorf("%w: %s", gateway.ErrNetworkUnavailable, err)
				return
			}
			event, err := payload.toEvent()
			if err != nil {
				log.WithError(err).Warn("gateway: dropping undecodable stream event")
				continue
			}
			select {
			case eventCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventCh, errCh, nil
}

func (c *restClient) GetEvents(
	ctx context.Context, address string, cursor uint64,
) ([]types.ChainEvent, uint64, error) {
	url := fmt.Sprintf(
		"%s/v1/accounts/%s/events?after=%d", c.serverUrl, address, cursor,
	)

	var resp eventsResponse
	if err := c.get(ctx, url, &resp); err != nil {
		return nil, 0, err
	}

	events := make([]types.ChainEvent, 0, len(resp.Events))
	for _, wire := range resp.Events {
		event, err := wire.toEvent()
		if err != nil {
			log.WithError(err).Warn("gateway: dropping undecodable polled event")
			continue
		}
		events = append(events, event)
	}
	return events, resp.Cursor, nil
}

func (c *restClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.streams {
		// nolint
		conn.Close()
	}
	c.streams = nil
}

func (c *restClient) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(handshakeTimeout)
			if err := conn.WriteControl(
				websocket.PingMessage, nil, deadline,
			); err != nil {
				return
			}
		}
	}
}

func (c *restClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *restClient) post(ctx context.Context, url string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(buf),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *restClient) do(req *http.Request, out any) error {
	resp, err := c.httped.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return fmt.Errorf("%w: %s", gateway.ErrNetworkUnavailable, err)
		}
		return fmt.Errorf("%w: %s", gateway.ErrNetworkUnavailable, err)
	}
	// nolint
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf(
			"%w: server returned %d: %s",
			gateway.ErrNetworkUnavailable, resp.StatusCode, strings.TrimSpace(string(buf)),
		)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(buf)),
		)
	}
	return json.Unmarshal(buf, out)
}

func toWebsocketUrl(serverUrl string) string {
	switch {
	case strings.HasPrefix(serverUrl, "https://"):
		return "wss://" + strings.TrimPrefix(serverUrl, "https://")
	case strings.HasPrefix(serverUrl, "http://"):
		return "ws://" + strings.TrimPrefix(serverUrl, "http://")
	default:
		return serverUrl
	}
}
