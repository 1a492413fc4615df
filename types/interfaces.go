package types

import (
	"context"
)

type Store interface {
	ConfigStore() ConfigStore
	RecordStore() RecordStore
	CertificateStore() CertificateStore
	CursorStore() CursorStore
	Clean(ctx context.Context)
	Close()
}

type ConfigStore interface {
	GetType() string
	GetDatadir() string
	AddData(ctx context.Context, data Config) error
	GetData(ctx context.Context) (*Config, error)
	CleanData(ctx context.Context) error
	Close()
}

// RecordStore holds the plain unspent outputs of the account. Writes are
// reserved to the synchronizer; every other component reads through the
// lock-filtered view.
type RecordStore interface {
	AddRecords(ctx context.Context, records []Record) (int, error)
	SpendRecords(ctx context.Context, spentRecords map[Outpoint]string) (int, error)
	GetAllRecords(ctx context.Context) (spendable, spent []Record, err error)
	GetSpendableRecords(ctx context.Context) ([]Record, error)
	GetRecords(ctx context.Context, keys []Outpoint) ([]Record, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan RecordEvent
	Close()
}

// CertificateStore holds transfer certificates. Updates replace the
// certificate wholesale.
type CertificateStore interface {
	AddCertificates(ctx context.Context, certificates []Certificate) (int, error)
	UpdateCertificates(ctx context.Context, certificates []Certificate) (int, error)
	GetAllCertificates(ctx context.Context) ([]Certificate, error)
	GetCertificates(ctx context.Context, ids []string) ([]Certificate, error)
	Clean(ctx context.Context) error
	GetEventChannel() <-chan CertificateEvent
	Close()
}

// CursorStore persists the per-address synchronization cursor so polling can
// resume after a restart. A missing cursor reads as zero, which forces a
// full resynchronization.
type CursorStore interface {
	SetCursor(ctx context.Context, address string, sequence uint64) error
	GetCursor(ctx context.Context, address string) (uint64, error)
	Clean(ctx context.Context) error
	Close()
}
