// Package filestore persists the wallet configuration as a JSON file under
// the wallet datadir.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tessera-cash/wallet-sdk/types"
)

const (
	configFile = "config.json"
)

type configStore struct {
	datadir  string
	filePath string
	lock     *sync.Mutex
}

func NewConfigStore(datadir string) (types.ConfigStore, error) {
	if datadir == "" {
		return nil, fmt.Errorf("missing datadir")
	}
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}
	return &configStore{
		datadir:  datadir,
		filePath: filepath.Join(datadir, configFile),
		lock:     &sync.Mutex{},
	}, nil
}

func (s *configStore) GetType() string {
	return types.FileStore
}

func (s *configStore) GetDatadir() string {
	return s.datadir
}

func (s *configStore) AddData(_ context.Context, data types.Config) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf, err := json.MarshalIndent(encodeData(data), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, buf, 0600)
}

func (s *configStore) GetData(_ context.Context) (*types.Config, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var data storeData
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, err
	}
	if data.isEmpty() {
		return nil, nil
	}
	config := data.decode()
	return &config, nil
}

func (s *configStore) CleanData(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *configStore) Close() {}
