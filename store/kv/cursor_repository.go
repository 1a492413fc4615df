package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tessera-cash/wallet-sdk/types"
	"github.com/timshannon/badgerhold/v4"
)

const (
	cursorStoreDir = "cursors"
)

type cursorStore struct {
	db *badgerhold.Store
}

type cursorRow struct {
	Address  string
	Sequence uint64
}

func NewCursorStore(dir string, logger badger.Logger) (types.CursorStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, cursorStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor store: %s", err)
	}
	return &cursorStore{db: badgerDb}, nil
}

func (s *cursorStore) SetCursor(_ context.Context, address string, sequence uint64) error {
	row := cursorRow{Address: address, Sequence: sequence}
	return s.db.Upsert(address, &row)
}

func (s *cursorStore) GetCursor(_ context.Context, address string) (uint64, error) {
	var row cursorRow
	if err := s.db.Get(address, &row); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Sequence, nil
}

func (s *cursorStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the cursor db: %s", err)
	}
	return nil
}

func (s *cursorStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
}
