package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tessera-cash/wallet-sdk/types"
	"github.com/timshannon/badgerhold/v4"
)

const (
	recordStoreDir = "records"
)

type recordStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.RecordEvent
}

type recordRow struct {
	Outpoint        types.Outpoint
	Address         string
	Amount          uint64
	Currency        string
	Position        types.Position
	FromCertificate bool
	CreatedAt       time.Time
	Spent           bool
	SpentBy         string
}

func NewRecordStore(dir string, logger badger.Logger) (types.RecordStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, recordStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %s", err)
	}
	return &recordStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.RecordEvent, 100),
	}, nil
}

func (s *recordStore) AddRecords(_ context.Context, records []types.Record) (int, error) {
	addedRecords := make([]types.Record, 0, len(records))
	for _, record := range records {
		row := toRecordRow(record)
		if err := s.db.Insert(record.Outpoint.String(), &row); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return -1, err
		}
		addedRecords = append(addedRecords, record)
	}

	if len(addedRecords) > 0 {
		go s.sendEvent(types.RecordEvent{Type: types.RecordsAdded, Records: addedRecords})
	}

	return len(addedRecords), nil
}

func (s *recordStore) SpendRecords(
	ctx context.Context, spentRecordMap map[types.Outpoint]string,
) (int, error) {
	outpoints := make([]types.Outpoint, 0, len(spentRecordMap))
	for outpoint := range spentRecordMap {
		outpoints = append(outpoints, outpoint)
	}
	records, err := s.GetRecords(ctx, outpoints)
	if err != nil {
		return -1, err
	}

	spentRecords := make([]types.Record, 0, len(records))
	for _, record := range records {
		if record.Spent {
			continue
		}
		record.Spent = true
		record.SpentBy = spentRecordMap[record.Outpoint]

		row := toRecordRow(record)
		if err := s.db.Update(record.Outpoint.String(), &row); err != nil {
			return -1, err
		}
		spentRecords = append(spentRecords, record)
	}

	if len(spentRecords) > 0 {
		go s.sendEvent(types.RecordEvent{Type: types.RecordsSpent, Records: spentRecords})
	}

	return len(spentRecords), nil
}

func (s *recordStore) GetAllRecords(
	_ context.Context,
) (spendable, spent []types.Record, err error) {
	var rows []recordRow
	err = s.db.Find(&rows, nil)
	if err != nil {
		return nil, nil, err
	}

	for _, row := range rows {
		record := row.toRecord()
		if record.Spent {
			spent = append(spent, record)
		} else {
			spendable = append(spendable, record)
		}
	}
	return
}

func (s *recordStore) GetSpendableRecords(_ context.Context) ([]types.Record, error) {
	var rows []recordRow
	if err := s.db.Find(&rows, nil); err != nil {
		return nil, err
	}

	spendable := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		record := row.toRecord()
		if !record.Spent {
			spendable = append(spendable, record)
		}
	}
	return spendable, nil
}

func (s *recordStore) GetRecords(
	_ context.Context, keys []types.Outpoint,
) ([]types.Record, error) {
	var records []types.Record
	for _, key := range keys {
		var row recordRow
		err := s.db.Get(key.String(), &row)
		if err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}

			return nil, err
		}
		records = append(records, row.toRecord())
	}

	return records, nil
}

func (s *recordStore) GetEventChannel() <-chan types.RecordEvent {
	return s.eventCh
}

func (s *recordStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the record db: %s", err)
	}
	return nil
}

func (s *recordStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
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

func toRecordRow(record types.Record) recordRow {
	return recordRow{
		Outpoint:        record.Outpoint,
		Address:         record.Address,
		Amount:          record.Amount,
		Currency:        record.Currency,
		Position:        record.Position,
		FromCertificate: record.FromCertificate,
		CreatedAt:       record.CreatedAt,
		Spent:           record.Spent,
		SpentBy:         record.SpentBy,
	}
}

func (r recordRow) toRecord() types.Record {
	return types.Record{
		Outpoint:        r.Outpoint,
		Address:         r.Address,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Position:        r.Position,
		FromCertificate: r.FromCertificate,
		CreatedAt:       r.CreatedAt,
		Spent:           r.Spent,
		SpentBy:         r.SpentBy,
	}
}
