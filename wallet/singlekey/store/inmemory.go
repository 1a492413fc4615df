package walletstore

import (
	"fmt"
	"sync"
)

type inmemoryStore struct {
	mu   *sync.RWMutex
	data *WalletData
}

func NewInMemoryWalletStore() WalletStore {
	return &inmemoryStore{mu: &sync.RWMutex{}}
}

func (s *inmemoryStore) AddWallet(data WalletData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = &data
	return nil
}

func (s *inmemoryStore) GetWallet() (*WalletData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, fmt.Errorf("wallet not initialized")
	}
	data := *s.data
	return &data, nil
}
