package sqlstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/tessera-cash/wallet-sdk/types"
)

type recordStore struct {
	db      *sql.DB
	lock    *sync.Mutex
	eventCh chan types.RecordEvent
}

func NewRecordStore(db *sql.DB) types.RecordStore {
	return &recordStore{
		db:      db,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.RecordEvent, 100),
	}
}

func (s *recordStore) AddRecords(ctx context.Context, records []types.Record) (int, error) {
	added := make([]types.Record, 0, len(records))
	for _, record := range records {
		createdAt := int64(0)
		if !record.CreatedAt.IsZero() {
			createdAt = record.CreatedAt.Unix()
		}
		res, err := s.db.ExecContext(
			ctx,
			`INSERT INTO record (
				txid, vout, address, amount, currency, position_block,
				position_slot, from_certificate, created_at, spent, spent_by
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (txid, vout) DO NOTHING`,
			record.Txid, record.VOut, record.Address, record.Amount,
			record.Currency, record.Position.Block, record.Position.Slot,
			record.FromCertificate, createdAt, record.Spent, record.SpentBy,
		)
		if err != nil {
			return -1, err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return -1, err
		}
		if count > 0 {
			added = append(added, record)
		}
	}

	if len(added) > 0 {
		go s.sendEvent(types.RecordEvent{Type: types.RecordsAdded, Records: added})
	}
	return len(added), nil
}

func (s *recordStore) SpendRecords(
	ctx context.Context, spentRecordMap map[types.Outpoint]string,
) (int, error) {
	spent := make([]types.Record, 0, len(spentRecordMap))
	for outpoint, spentBy := range spentRecordMap {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE record SET spent = TRUE, spent_by = ?
			WHERE txid = ? AND vout = ? AND spent = FALSE`,
			spentBy, outpoint.Txid, outpoint.VOut,
		)
		if err != nil {
			return -1, err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return -1, err
		}
		if count == 0 {
			continue
		}
		records, err := s.GetRecords(ctx, []types.Outpoint{outpoint})
		if err != nil {
			return -1, err
		}
		spent = append(spent, records...)
	}

	if len(spent) > 0 {
		go s.sendEvent(types.RecordEvent{Type: types.RecordsSpent, Records: spent})
	}
	return len(spent), nil
}

func (s *recordStore) GetAllRecords(
	ctx context.Context,
) (spendable, spent []types.Record, err error) {
	records, err := s.queryRecords(ctx, `SELECT * FROM record`)
	if err != nil {
		return nil, nil, err
	}
	for _, record := range records {
		if record.Spent {
			spent = append(spent, record)
		} else {
			spendable = append(spendable, record)
		}
	}
	return
}

func (s *recordStore) GetSpendableRecords(ctx context.Context) ([]types.Record, error) {
	return s.queryRecords(ctx, `SELECT * FROM record WHERE spent = FALSE`)
}

func (s *recordStore) GetRecords(
	ctx context.Context, keys []types.Outpoint,
) ([]types.Record, error) {
	var records []types.Record
	for _, key := range keys {
		found, err := s.queryRecords(
			ctx, `SELECT * FROM record WHERE txid = ? AND vout = ?`,
			key.Txid, key.VOut,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, found...)
	}
	return records, nil
}

func (s *recordStore) GetEventChannel() <-chan types.RecordEvent {
	return s.eventCh
}

func (s *recordStore) Clean(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM record`)
	return err
}

func (s *recordStore) Close() {}

func (s *recordStore) queryRecords(
	ctx context.Context, query string, args ...any,
) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// nolint
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		var (
			vout, slot    int64
			amount, block int64
			createdAt     int64
			record        types.Record
		)
		if err := rows.Scan(
			&record.Txid, &vout, &record.Address, &amount, &record.Currency,
			&block, &slot, &record.FromCertificate, &createdAt,
			&record.Spent, &record.SpentBy,
		); err != nil {
			return nil, err
		}
		record.VOut, err = safecast.ToUint32(vout)
		if err != nil {
			return nil, err
		}
		record.Amount, err = safecast.ToUint64(amount)
		if err != nil {
			return nil, err
		}
		record.Position.Block, err = safecast.ToUint64(block)
		if err != nil {
			return nil, err
		}
		record.Position.Slot, err = safecast.ToUint32(slot)
		if err != nil {
			return nil, err
		}
		if createdAt > 0 {
			record.CreatedAt = time.Unix(createdAt, 0)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *recordStore) sendEvent(event types.RecordEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
