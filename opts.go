package walletsdk

import (
	"fmt"

	"github.com/tessera-cash/wallet-sdk/gateway"
	"github.com/tessera-cash/wallet-sdk/wallet"
)

type Option func(options any) error

// PaymentOptions customizes input selection for BuildAndSign.
type PaymentOptions struct {
	// PreferCertificates ranks redeemable certificates ahead of plain
	// records. Defaults to true for group-affiliated accounts.
	PreferCertificates *bool

	// Senders restricts selection to records owned by these addresses.
	Senders []string
}

func checkPaymentOptionsType(o any) (*PaymentOptions, error) {
	opts, ok := o.(*PaymentOptions)
	if !ok {
		return nil, fmt.Errorf("invalid payment options type")
	}
	return opts, nil
}

func WithCertificatePreference(o any) error {
	opts, err := checkPaymentOptionsType(o)
	if err != nil {
		return err
	}
	prefer := true
	opts.PreferCertificates = &prefer
	return nil
}

func WithoutCertificatePreference(o any) error {
	opts, err := checkPaymentOptionsType(o)
	if err != nil {
		return err
	}
	prefer := false
	opts.PreferCertificates = &prefer
	return nil
}

func WithSenders(addresses ...string) Option {
	return func(o any) error {
		opts, err := checkPaymentOptionsType(o)
		if err != nil {
			return err
		}
		if len(addresses) == 0 {
			return fmt.Errorf("no sender addresses provided")
		}
		opts.Senders = addresses
		return nil
	}
}

// ClientOption customizes client construction, mostly to inject fakes.
type ClientOption func(c *walletClient)

func WithTransportClient(transport gateway.TransportClient) ClientOption {
	return func(c *walletClient) {
		c.transport = transport
	}
}

func WithWalletService(walletSvc wallet.WalletService) ClientOption {
	return func(c *walletClient) {
		c.wallet = walletSvc
	}
}
