package sqlstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/tessera-cash/wallet-sdk/types"
)

type certificateStore struct {
	db      *sql.DB
	lock    *sync.Mutex
	eventCh chan types.CertificateEvent
}

func NewCertificateStore(db *sql.DB) types.CertificateStore {
	return &certificateStore{
		db:      db,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.CertificateEvent, 100),
	}
}

func (s *certificateStore) AddCertificates(
	ctx context.Context, certificates []types.Certificate,
) (int, error) {
	added := make([]types.Certificate, 0, len(certificates))
	for _, certificate := range certificates {
		res, err := s.db.ExecContext(
			ctx,
			`INSERT INTO certificate (
				id, address, amount, currency, origin_txid, origin_vout,
				position_block, position_slot, group_signature,
				user_signature, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			certificate.Id, certificate.Address, certificate.Amount,
			certificate.Currency, certificate.Origin.Txid,
			certificate.Origin.VOut, certificate.Position.Block,
			certificate.Position.Slot, certificate.GroupSignature,
			certificate.UserSignature, string(certificate.Status),
			certificate.CreatedAt.Unix(),
		)
		if err != nil {
			return -1, err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return -1, err
		}
		if count > 0 {
			added = append(added, certificate)
		}
	}

	if len(added) > 0 {
		go s.sendEvent(types.CertificateEvent{
			Type: types.CertificatesAdded, Certificates: added,
		})
	}
	return len(added), nil
}

func (s *certificateStore) UpdateCertificates(
	ctx context.Context, certificates []types.Certificate,
) (int, error) {
	for _, certificate := range certificates {
		if _, err := s.db.ExecContext(
			ctx,
			`INSERT INTO certificate (
				id, address, amount, currency, origin_txid, origin_vout,
				position_block, position_slot, group_signature,
				user_signature, status, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				address = excluded.address,
				amount = excluded.amount,
				currency = excluded.currency,
				origin_txid = excluded.origin_txid,
				origin_vout = excluded.origin_vout,
				position_block = excluded.position_block,
				position_slot = excluded.position_slot,
				group_signature = excluded.group_signature,
				user_signature = excluded.user_signature,
				status = excluded.status,
				created_at = excluded.created_at`,
			certificate.Id, certificate.Address, certificate.Amount,
			certificate.Currency, certificate.Origin.Txid,
			certificate.Origin.VOut, certificate.Position.Block,
			certificate.Position.Slot, certificate.GroupSignature,
			certificate.UserSignature, string(certificate.Status),
			certificate.CreatedAt.Unix(),
		); err != nil {
			return -1, err
		}
	}

	go s.sendEvent(types.CertificateEvent{
		Type:         types.CertificatesUpdated,
		Certificates: certificates,
	})
	return len(certificates), nil
}

func (s *certificateStore) GetAllCertificates(
	ctx context.Context,
) ([]types.Certificate, error) {
	return s.queryCertificates(ctx, `SELECT * FROM certificate`)
}

func (s *certificateStore) GetCertificates(
	ctx context.Context, ids []string,
) ([]types.Certificate, error) {
	var certificates []types.Certificate
	for _, id := range ids {
		found, err := s.queryCertificates(
			ctx, `SELECT * FROM certificate WHERE id = ?`, id,
		)
		if err != nil {
			return nil, err
		}
		certificates = append(certificates, found...)
	}
	return certificates, nil
}

func (s *certificateStore) GetEventChannel() <-chan types.CertificateEvent {
	return s.eventCh
}

func (s *certificateStore) Clean(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM certificate`)
	return err
}

func (s *certificateStore) Close() {}

func (s *certificateStore) queryCertificates(
	ctx context.Context, query string, args ...any,
) ([]types.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	var certificates []types.Certificate
	for rows.Next() {
		var (
			amount, vout, block, slot, createdAt int64
			status                               string
			certificate                          types.Certificate
		)
		if err := rows.Scan(
			&certificate.Id, &certificate.Address, &amount,
			&certificate.Currency, &certificate.Origin.Txid, &vout,
			&block, &slot, &certificate.GroupSignature,
			&certificate.UserSignature, &status, &createdAt,
		); err != nil {
			return nil, err
		}
		certificate.Amount, err = safecast.ToUint64(amount)
		if err != nil {
			return nil, err
		}
		certificate.Origin.VOut, err = safecast.ToUint32(vout)
		if err != nil {
			return nil, err
		}
		certificate.Position.Block, err = safecast.ToUint64(block)
		if err != nil {
			return nil, err
		}
		certificate.Position.Slot, err = safecast.ToUint32(slot)
		if err != nil {
			return nil, err
		}
		certificate.Status = types.CertificateStatus(status)
		if createdAt > 0 {
			certificate.CreatedAt = time.Unix(createdAt, 0)
		}
		certificates = append(certificates, certificate)
	}
	return certificates, rows.Err()
}

func (s *certificateStore) sendEvent(event types.CertificateEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
