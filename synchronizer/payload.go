package synchronizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/tessera-cash/wallet-sdk/types"
)

// Wire payloads are loosely typed maps; they are decoded into these DTOs
// before touching the stores.

type positionPayload struct {
	Block uint64 `mapstructure:"block"`
	Slot  uint32 `mapstructure:"slot"`
}

type recordAddedPayload struct {
	Address         string          `mapstructure:"address"`
	Amount          uint64          `mapstructure:"amount"`
	Currency        string          `mapstructure:"currency"`
	Position        positionPayload `mapstructure:"position"`
	FromCertificate bool            `mapstructure:"fromCertificate"`
	CreatedAt       int64           `mapstructure:"createdAt"`
}

type recordSpentPayload struct {
	SpentBy string `mapstructure:"spentBy"`
}

type certificateIssuedPayload struct {
	Address        string          `mapstructure:"address"`
	Amount         uint64          `mapstructure:"amount"`
	Currency       string          `mapstructure:"currency"`
	OriginTxid     string          `mapstructure:"originTxid"`
	OriginVOut     uint32          `mapstructure:"originVout"`
	Position       positionPayload `mapstructure:"position"`
	GroupSignature string          `mapstructure:"groupSignature"`
	UserSignature  string          `mapstructure:"userSignature"`
	Status         string          `mapstructure:"status"`
	CreatedAt      int64           `mapstructure:"createdAt"`
}

type certificateStatusPayload struct {
	Status string `mapstructure:"status"`
}

func decodePayload(payload map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(payload)
}

func (p recordAddedPayload) toRecord(outpoint types.Outpoint) types.Record {
	record := types.Record{
		Outpoint:        outpoint,
		Address:         p.Address,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Position:        types.Position{Block: p.Position.Block, Slot: p.Position.Slot},
		FromCertificate: p.FromCertificate,
	}
	if p.CreatedAt > 0 {
		record.CreatedAt = time.Unix(p.CreatedAt, 0)
	}
	return record
}

func (p certificateIssuedPayload) toCertificate(id string) types.Certificate {
	status := types.CertificateStatus(p.Status)
	if status == "" {
		status = types.CertificatePending
	}
	certificate := types.Certificate{
		Id:             id,
		Address:        p.Address,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Origin:         types.Outpoint{Txid: p.OriginTxid, VOut: p.OriginVOut},
		Position:       types.Position{Block: p.Position.Block, Slot: p.Position.Slot},
		GroupSignature: p.GroupSignature,
		UserSignature:  p.UserSignature,
		Status:         status,
	}
	if p.CreatedAt > 0 {
		certificate.CreatedAt = time.Unix(p.CreatedAt, 0)
	}
	return certificate
}

func parseOutpoint(id string) (types.Outpoint, error) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return types.Outpoint{}, fmt.Errorf("malformed outpoint %q", id)
	}
	vout, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil {
		return types.Outpoint{}, fmt.Errorf("malformed outpoint %q: %s", id, err)
	}
	return types.Outpoint{Txid: id[:idx], VOut: uint32(vout)}, nil
}
