package walletsdk

import (
	"context"

	"github.com/tessera-cash/wallet-sdk/types"
)

var Version string

// WalletClient is the client-side engine of the wallet: it reconciles local
// account state with the network and builds, signs and submits transactions
// over it.
type WalletClient interface {
	GetVersion() string
	GetConfigData(ctx context.Context) (*types.Config, error)
	Init(ctx context.Context, args InitArgs) error
	IsLocked(ctx context.Context) bool
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context) error
	Receive(ctx context.Context) (string, error)

	// BuildAndSign selects inputs, locks them, builds the per-currency
	// transactions and signs every input. The returned payload is immutable.
	BuildAndSign(
		ctx context.Context, request types.PaymentRequest, opts ...Option,
	) (*types.SignedPayload, error)

	// Submit routes the payload to the settlement or open-market endpoint.
	// Accepted payloads promote their input holds; rejected ones release
	// them and return SubmissionRejectedError.
	Submit(
		ctx context.Context, payload *types.SignedPayload,
	) (*types.SubmissionResult, error)

	// CancelDraft releases every hold taken by a draft that will not be
	// submitted.
	CancelDraft(ctx context.Context, draftId string) error

	// GetAvailableBalance sums spendable, unheld value for the address.
	GetAvailableBalance(
		ctx context.Context, address, currency string,
	) (uint64, error)

	ListRecords(ctx context.Context) (spendable, spent []types.Record, err error)
	ListCertificates(ctx context.Context) ([]types.Certificate, error)

	GetRecordEventChannel(ctx context.Context) <-chan types.RecordEvent
	GetCertificateEventChannel(ctx context.Context) <-chan types.CertificateEvent
	IsSynced(ctx context.Context) <-chan types.SyncEvent

	Dump(ctx context.Context) (string, error)
	Reset(ctx context.Context)
	Stop()
}

// InitArgs configures a fresh wallet. GroupId is left empty for accounts
// not affiliated with a settlement group.
type InitArgs struct {
	ServerUrl             string
	GroupId               string
	Network               string
	WalletType            string
	ClientType            string
	Password              string
	WithEventFeed         bool
	PollInterval          int64 // seconds
	DraftHoldDuration     int64 // seconds
	SubmittedHoldDuration int64 // seconds
	Fees                  types.FeeInfo
}
