package walletsdk

import (
	"errors"
	"fmt"

	"github.com/tessera-cash/wallet-sdk/capsule"
	"github.com/tessera-cash/wallet-sdk/gateway"
	"github.com/tessera-cash/wallet-sdk/internal/utils"
	"github.com/tessera-cash/wallet-sdk/signer"
)

var (
	ErrAlreadyInitialized = errors.New("client already initialized")
	ErrNotInitialized     = errors.New(
		"client not initialized, please initialize it first",
	)

	// ErrRecordRaceLost is returned when draft locks could not be acquired
	// even after one automatic re-selection.
	ErrRecordRaceLost = errors.New("selected records were taken by a concurrent draft")

	// Failure modes of the underlying layers, re-exported so callers match
	// on a single package.
	ErrInsufficientFunds         = utils.ErrInsufficientFunds
	ErrSignatureFailed           = signer.ErrSignatureFailed
	ErrAddressVerificationFailed = capsule.ErrVerificationFailed
	ErrNetworkUnavailable        = gateway.ErrNetworkUnavailable
)

// SubmissionRejectedError carries the reason the network refused a signed
// payload. Every input hold has already been released when it is returned.
type SubmissionRejectedError struct {
	Reason string
}

func (e SubmissionRejectedError) Error() string {
	return fmt.Sprintf("submission rejected: %s", e.Reason)
}
