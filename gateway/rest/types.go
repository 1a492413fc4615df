package restgateway

import (
	"fmt"

	"github.com/tessera-cash/wallet-sdk/types"
)

type groupInfoResponse struct {
	GroupId            string `json:"groupId"`
	PublicKey          string `json:"publicKey"`
	SettlementEndpoint string `json:"settlementEndpoint"`
	IsAffiliated       bool   `json:"isAffiliated"`
}

type submissionResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type eventWire struct {
	Kind          string         `json:"kind"`
	RecordId      string         `json:"recordId,omitempty"`
	CertificateId string         `json:"certificateId,omitempty"`
	Sequence      uint64         `json:"sequence"`
	Payload       map[string]any `json:"payload,omitempty"`
}

func (w eventWire) toEvent() (types.ChainEvent, error) {
	kind, err := types.ParseEventKind(w.Kind)
	if err != nil {
		return types.ChainEvent{}, err
	}
	if w.RecordId == "" && w.CertificateId == "" {
		return types.ChainEvent{}, fmt.Errorf("event %q has no target", w.Kind)
	}
	return types.ChainEvent{
		Kind:          kind,
		RecordId:      w.RecordId,
		CertificateId: w.CertificateId,
		Sequence:      w.Sequence,
		Payload:       w.Payload,
	}, nil
}

type eventsResponse struct {
	Events []eventWire `json:"events"`
	Cursor uint64      `json:"cursor"`
}

type positionWire struct {
	Block uint64 `json:"block"`
	Slot  uint32 `json:"slot"`
}

type signatureWire struct {
	PublicKey string `json:"publicKey"`
	R         string `json:"r"`
	S         string `json:"s"`
}

type txInputWire struct {
	Txid      string         `json:"txid"`
	VOut      uint32         `json:"vout"`
	Position  positionWire   `json:"position"`
	Amount    uint64         `json:"amount"`
	Currency  string         `json:"currency"`
	Address   string         `json:"address"`
	Signature *signatureWire `json:"signature,omitempty"`
}

type txOutputWire struct {
	Address  string `json:"address"`
	Amount   uint64 `json:"amount"`
	Currency string `json:"currency"`
	IsChange bool   `json:"isChange,omitempty"`
}

type txWire struct {
	Digest         string         `json:"digest"`
	Inputs         []txInputWire  `json:"inputs"`
	Outputs        []txOutputWire `json:"outputs"`
	Fee            uint64         `json:"fee"`
	Timestamp      int64          `json:"timestamp"`
	SerializedSize uint32         `json:"serializedSize"`
}

type aggregateWire struct {
	Digest         string   `json:"digest"`
	Txs            []txWire `json:"txs"`
	GroupSignature string   `json:"groupSignature,omitempty"`
	Timestamp      int64    `json:"timestamp"`
}

func transactionToWire(tx types.Transaction) txWire {
	inputs := make([]txInputWire, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		wire := txInputWire{
			Txid:     in.Txid,
			VOut:     in.VOut,
			Position: positionWire{Block: in.Position.Block, Slot: in.Position.Slot},
			Amount:   in.Amount,
			Currency: in.Currency,
			Address:  in.Address,
		}
		if !in.Signature.IsZero() {
			wire.Signature = &signatureWire{
				PublicKey: in.Signature.PublicKey,
				R:         in.Signature.R,
				S:         in.Signature.S,
			}
		}
		inputs = append(inputs, wire)
	}

	outputs := make([]txOutputWire, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		outputs = append(outputs, txOutputWire{
			Address:  out.Address,
			Amount:   out.Amount,
			Currency: out.Currency,
			IsChange: out.IsChange,
		})
	}

	return txWire{
		Digest:         tx.Digest,
		Inputs:         inputs,
		Outputs:        outputs,
		Fee:            tx.Fee,
		Timestamp:      tx.Timestamp,
		SerializedSize: tx.SerializedSize,
	}
}
