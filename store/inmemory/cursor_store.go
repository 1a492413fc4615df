package inmemorystore

import (
	"context"
	"sync"

	"github.com/tessera-cash/wallet-sdk/types"
)

type cursorStore struct {
	lock    *sync.RWMutex
	cursors map[string]uint64
}

func NewCursorStore() types.CursorStore {
	return &cursorStore{
		lock:    &sync.RWMutex{},
		cursors: make(map[string]uint64),
	}
}

func (s *cursorStore) SetCursor(_ context.Context, address string, sequence uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cursors[address] = sequence
	return nil
}

func (s *cursorStore) GetCursor(_ context.Context, address string) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.cursors[address], nil
}

func (s *cursorStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cursors = make(map[string]uint64)
	return nil
}

func (s *cursorStore) Close() {}
