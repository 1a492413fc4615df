package inmemorystore

import (
	"context"
	"sync"
	"time"

	"github.com/tessera-cash/wallet-sdk/types"
)

type recordStore struct {
	lock    *sync.RWMutex
	records map[string]types.Record

	sendLock *sync.Mutex
	eventCh  chan types.RecordEvent
}

func NewRecordStore() types.RecordStore {
	return &recordStore{
		lock:     &sync.RWMutex{},
		records:  make(map[string]types.Record),
		sendLock: &sync.Mutex{},
		eventCh:  make(chan types.RecordEvent, 100),
	}
}

func (s *recordStore) AddRecords(_ context.Context, records []types.Record) (int, error) {
	s.lock.Lock()
	added := make([]types.Record, 0, len(records))
	for _, record := range records {
		key := record.Outpoint.String()
		if _, ok := s.records[key]; ok {
			continue
		}
		s.records[key] = record
		added = append(added, record)
	}
	s.lock.Unlock()

	if len(added) > 0 {
		go s.sendEvent(types.RecordEvent{Type: types.RecordsAdded, Records: added})
	}
	return len(added), nil
}

func (s *recordStore) SpendRecords(
	_ context.Context, spentRecordMap map[types.Outpoint]string,
) (int, error) {
	s.lock.Lock()
	spent := make([]types.Record, 0, len(spentRecordMap))
	for outpoint, spentBy := range spentRecordMap {
		record, ok := s.records[outpoint.String()]
		if !ok || record.Spent {
			continue
		}
		record.Spent = true
		record.SpentBy = spentBy
		s.records[outpoint.String()] = record
		spent = append(spent, record)
	}
	s.lock.Unlock()

	if len(spent) > 0 {
		go s.sendEvent(types.RecordEvent{Type: types.RecordsSpent, Records: spent})
	}
	return len(spent), nil
}

func (s *recordStore) GetAllRecords(
	_ context.Context,
) (spendable, spent []types.Record, err error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, record := range s.records {
		if record.Spent {
			spent = append(spent, record)
		} else {
			spendable = append(spendable, record)
		}
	}
	return
}

func (s *recordStore) GetSpendableRecords(_ context.Context) ([]types.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	spendable := make([]types.Record, 0, len(s.records))
	for _, record := range s.records {
		if !record.Spent {
			spendable = append(spendable, record)
		}
	}
	return spendable, nil
}

func (s *recordStore) GetRecords(
	_ context.Context, keys []types.Outpoint,
) ([]types.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var records []types.Record
	for _, key := range keys {
		if record, ok := s.records[key.String()]; ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *recordStore) GetEventChannel() <-chan types.RecordEvent {
	return s.eventCh
}

func (s *recordStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.records = make(map[string]types.Record)
	return nil
}

func (s *recordStore) Close() {}

func (s *recordStore) sendEvent(event types.RecordEvent) {
	s.sendLock.Lock()
	defer s.sendLock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
