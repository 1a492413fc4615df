package types

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	InMemoryStore = "inmemory"
	FileStore     = "file"
	KVStore       = "kv"
	SQLStore      = "sql"
)

// Config is the persisted wallet configuration. GroupId is empty when the
// account is not affiliated with any settlement group.
type Config struct {
	ServerUrl             string
	GroupId               string
	Network               string
	WalletType            string
	ClientType            string
	StoreType             string
	WithEventFeed         bool
	PollInterval          time.Duration
	DraftHoldDuration     time.Duration
	SubmittedHoldDuration time.Duration
	Fees                  FeeInfo
}

type FeeInfo struct {
	BaseFee     uint64
	PerInputFee uint64
}

// For returns the total fee charged for a transaction with the given number
// of inputs.
func (f FeeInfo) For(numInputs int) uint64 {
	return f.BaseFee + f.PerInputFee*uint64(numInputs)
}

type Outpoint struct {
	Txid string
	VOut uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.VOut)
}

// Position locates a record in the ledger: the block that settled it and the
// slot of its originating transaction within that block.
type Position struct {
	Block uint64
	Slot  uint32
}

// Record is a plain unspent output. Immutable once created; it is only
// flagged spent when the spent-confirmation event arrives.
type Record struct {
	Outpoint
	Address         string
	Amount          uint64
	Currency        string
	Position        Position
	FromCertificate bool
	CreatedAt       time.Time
	Spent           bool
	SpentBy         string
}

func (r Record) String() string {
	// nolint
	b, _ := json.MarshalIndent(r, "", "  ")
	return string(b)
}

type CertificateStatus string

const (
	CertificatePending    CertificateStatus = "pending"
	CertificateRedeemable CertificateStatus = "redeemable"
	CertificateInvalid    CertificateStatus = "invalid"
)

// Certificate is a fast-settlement transfer voucher. Only its status moves
// (pending -> redeemable -> invalid) and updates replace the certificate
// wholesale, never field by field.
type Certificate struct {
	Id             string
	Address        string
	Amount         uint64
	Currency       string
	Origin         Outpoint
	Position       Position
	GroupSignature string
	UserSignature  string
	Status         CertificateStatus
	CreatedAt      time.Time
}

func (c Certificate) String() string {
	// nolint
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

func (c Certificate) IsRedeemable() bool {
	return c.Status == CertificateRedeemable
}

// SpendableInput is the lock-filtered view the transaction builder draws
// from: either a plain record or a redeemable certificate. LockId is the key
// the lock manager tracks the input under.
type SpendableInput struct {
	LockId          string
	Origin          Outpoint
	Position        Position
	Address         string
	Amount          uint64
	Currency        string
	FromCertificate bool
}

func (r Record) ToInput() SpendableInput {
	return SpendableInput{
		LockId:          r.Outpoint.String(),
		Origin:          r.Outpoint,
		Position:        r.Position,
		Address:         r.Address,
		Amount:          r.Amount,
		Currency:        r.Currency,
		FromCertificate: r.FromCertificate,
	}
}

func (c Certificate) ToInput() SpendableInput {
	return SpendableInput{
		LockId:          c.Id,
		Origin:          c.Origin,
		Position:        c.Position,
		Address:         c.Address,
		Amount:          c.Amount,
		Currency:        c.Currency,
		FromCertificate: true,
	}
}

type RecordEventType int

const (
	RecordsAdded RecordEventType = iota
	RecordsSpent
)

func (e RecordEventType) String() string {
	return map[RecordEventType]string{
		RecordsAdded: "RECORDS_ADDED",
		RecordsSpent: "RECORDS_SPENT",
	}[e]
}

type RecordEvent struct {
	Type    RecordEventType
	Records []Record
}

type CertificateEventType int

const (
	CertificatesAdded CertificateEventType = iota
	CertificatesUpdated
)

func (e CertificateEventType) String() string {
	return map[CertificateEventType]string{
		CertificatesAdded:   "CERTIFICATES_ADDED",
		CertificatesUpdated: "CERTIFICATES_UPDATED",
	}[e]
}

type CertificateEvent struct {
	Type         CertificateEventType
	Certificates []Certificate
}

// EventKind discriminates the closed set of inbound network events. New
// kinds are a compile-time-visible change: every consumer switches
// exhaustively on it.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventRecordAdded
	EventRecordSpent
	EventCertificateIssued
	EventCertificateStatusChanged
	EventCrossDomainCertificate
)

func (k EventKind) String() string {
	return map[EventKind]string{
		EventUnknown:                  "unknown",
		EventRecordAdded:              "record-added",
		EventRecordSpent:              "record-spent-confirmed",
		EventCertificateIssued:        "certificate-issued",
		EventCertificateStatusChanged: "certificate-status-changed",
		EventCrossDomainCertificate:   "cross-domain-certificate-received",
	}[k]
}

func ParseEventKind(s string) (EventKind, error) {
	for _, k := range []EventKind{
		EventRecordAdded, EventRecordSpent, EventCertificateIssued,
		EventCertificateStatusChanged, EventCrossDomainCertificate,
	} {
		if k.String() == s {
			return k, nil
		}
	}
	return EventUnknown, fmt.Errorf("unknown event kind %q", s)
}

// ChainEvent is one inbound change notification. The push channel and the
// polling fallback both produce this shape so downstream consumers never
// branch on source.
type ChainEvent struct {
	Kind          EventKind
	RecordId      string
	CertificateId string
	Sequence      uint64
	Payload       map[string]any
}

// TargetId returns the identifier of the record or certificate the event
// mutates, used to consult the lock manager.
func (e ChainEvent) TargetId() string {
	if e.RecordId != "" {
		return e.RecordId
	}
	return e.CertificateId
}

// DedupKey uniquely identifies the event for idempotent application. Status
// transitions of the same certificate are distinct events, so the new status
// is part of the key.
func (e ChainEvent) DedupKey() string {
	if e.Kind == EventCertificateStatusChanged {
		status, _ := e.Payload["status"].(string)
		return fmt.Sprintf("%s/%s/%s", e.Kind, e.TargetId(), status)
	}
	return fmt.Sprintf("%s/%s", e.Kind, e.TargetId())
}

// InputSignature is an ECDSA P-256 signature over a single input's spending
// pre-image. R and S are canonically encoded as fixed-width 64-character
// lowercase hex strings.
type InputSignature struct {
	PublicKey string
	R         string
	S         string
}

func (s InputSignature) IsZero() bool {
	return s.PublicKey == "" && s.R == "" && s.S == ""
}

type TxInput struct {
	Txid      string
	VOut      uint32
	Position  Position
	Amount    uint64
	Currency  string
	Address   string
	Signature InputSignature
}

func (i TxInput) Outpoint() Outpoint {
	return Outpoint{Txid: i.Txid, VOut: i.VOut}
}

type TxOutput struct {
	Address  string
	Amount   uint64
	Currency string
	IsChange bool
}

// Transaction is the direct wire envelope. Digest and SerializedSize are
// derived from the canonical serialization and are excluded from it.
type Transaction struct {
	Digest         string
	Inputs         []TxInput
	Outputs        []TxOutput
	Fee            uint64
	Timestamp      int64
	SerializedSize uint32
}

func (t Transaction) String() string {
	// nolint
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// AggregateWrapper is the outer envelope for open-market submissions. The
// group signature stays empty when no settlement group co-signs.
type AggregateWrapper struct {
	Digest         string
	Txs            []Transaction
	GroupSignature string
	Timestamp      int64
}

// SignedPayload is an immutable signed submission: exactly one of Direct or
// Aggregate is set. A new payload must be built for any change.
type SignedPayload struct {
	DraftId   string
	Direct    *Transaction
	Aggregate *AggregateWrapper
}

// LockIds returns the lock-manager keys of every input referenced by the
// payload.
func (p SignedPayload) LockIds() []string {
	txs := p.Txs()
	ids := make([]string, 0)
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			ids = append(ids, in.Outpoint().String())
		}
	}
	return ids
}

func (p SignedPayload) Txs() []Transaction {
	if p.Direct != nil {
		return []Transaction{*p.Direct}
	}
	if p.Aggregate != nil {
		return p.Aggregate.Txs
	}
	return nil
}

type SubmissionResult struct {
	Accepted bool
	Reason   string
}

type PaymentTarget struct {
	To       string
	Amount   uint64
	Currency string
}

type PaymentRequest struct {
	Targets []PaymentTarget
	Senders []string
}

// GroupInfo is the directory entry of a settlement group. PublicKey is the
// hex-encoded compressed P-256 point.
type GroupInfo struct {
	GroupId            string
	PublicKey          string
	SettlementEndpoint string
	IsAffiliated       bool
}

type SyncEvent struct {
	Synced bool
	Err    error
}
