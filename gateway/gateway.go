// Package gateway defines the transport boundary towards the network backend:
// the group directory, the two submission endpoints and the account event
// feed (push stream plus polling fallback).
package gateway

import (
	"context"
	"errors"

	"github.com/tessera-cash/wallet-sdk/types"
)

// ErrNetworkUnavailable marks transient transport failures. Callers treat it
// as a staleness condition, never as a reason to abort.
var ErrNetworkUnavailable = errors.New("network unavailable")

// TransportClient is the network client the wallet talks through. The REST
// implementation lives in gateway/rest; tests substitute fakes.
type TransportClient interface {
	// GetGroupInfo resolves a settlement group id against the directory.
	GetGroupInfo(ctx context.Context, groupId string) (*types.GroupInfo, error)

	// SubmitTransaction sends a direct envelope to the group settlement
	// endpoint. An empty endpoint falls back to the default server.
	SubmitTransaction(
		ctx context.Context, endpoint string, tx *types.Transaction,
	) (*types.SubmissionResult, error)

	// SubmitAggregate sends an aggregate envelope to the open-market
	// endpoint.
	SubmitAggregate(
		ctx context.Context, wrapper *types.AggregateWrapper,
	) (*types.SubmissionResult, error)

	// GetEventStream opens the push stream for the address. Events arrive on
	// the first channel; the second carries the terminal stream error, after
	// which both channels are closed.
	GetEventStream(
		ctx context.Context, address string,
	) (<-chan types.ChainEvent, <-chan error, error)

	// GetEvents polls events for the address past the given cursor and
	// returns them with the new cursor. Cursor 0 replays everything.
	GetEvents(
		ctx context.Context, address string, cursor uint64,
	) ([]types.ChainEvent, uint64, error)

	Close()
}
