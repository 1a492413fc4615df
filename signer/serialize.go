package signer

import (
	"bytes"
	"encoding/binary"

	"github.com/tessera-cash/wallet-sdk/types"
)

// writer accumulates the deterministic byte form: big-endian integers,
// length-prefixed strings and byte slices, fields in declaration order.
type writer struct {
	buf bytes.Buffer
	err error
}

func newWriter() *writer {
	return &writer{}
}

func (w *writer) writeUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) writeUint64(v uint64) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) writeBool(v bool) {
	if w.err != nil {
		return
	}
	b := byte(0)
	if v {
		b = 1
	}
	w.err = w.buf.WriteByte(b)
}

func (w *writer) writeBytes(b []byte) {
	w.writeUint32(uint32(len(b)))
	if w.err != nil {
		return
	}
	_, w.err = w.buf.Write(b)
}

func (w *writer) writeString(s string) {
	w.writeBytes([]byte(s))
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

// serializeTransaction produces the canonical byte form. With
// includeDerived=false it is the digest pre-image: signatures, the digest
// field and the serialized-size field are all left out because they derive
// from it.
func serializeTransaction(tx types.Transaction, includeDerived bool) ([]byte, error) {
	w := newWriter()

	w.writeUint32(uint32(len(tx.Inputs)))
	for _, input := range tx.Inputs {
		w.writeString(input.Txid)
		w.writeUint32(input.VOut)
		w.writeUint64(input.Position.Block)
		w.writeUint32(input.Position.Slot)
		w.writeUint64(input.Amount)
		w.writeString(input.Currency)
		w.writeString(input.Address)
		if includeDerived {
			w.writeString(input.Signature.PublicKey)
			w.writeString(input.Signature.R)
			w.writeString(input.Signature.S)
		}
	}

	w.writeUint32(uint32(len(tx.Outputs)))
	for _, output := range tx.Outputs {
		w.writeString(output.Address)
		w.writeUint64(output.Amount)
		w.writeString(output.Currency)
		w.writeBool(output.IsChange)
	}

	w.writeUint64(tx.Fee)
	w.writeUint64(uint64(tx.Timestamp))

	if includeDerived {
		w.writeString(tx.Digest)
	}

	if w.err != nil {
		return nil, w.err
	}
	return w.bytes(), nil
}
