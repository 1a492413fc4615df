// Package store assembles the persistence layer: a config store plus the
// record, certificate and cursor stores, selected by type.
package store

import (
	"context"
	"database/sql"
	"fmt"

	filestore "github.com/tessera-cash/wallet-sdk/store/file"
	inmemorystore "github.com/tessera-cash/wallet-sdk/store/inmemory"
	kvstore "github.com/tessera-cash/wallet-sdk/store/kv"
	sqlstore "github.com/tessera-cash/wallet-sdk/store/sql"
	"github.com/tessera-cash/wallet-sdk/types"
)

type Config struct {
	ConfigStoreType  string
	AppDataStoreType string
	BaseDir          string
}

type service struct {
	configStore      types.ConfigStore
	recordStore      types.RecordStore
	certificateStore types.CertificateStore
	cursorStore      types.CursorStore
	db               *sql.DB
}

func NewStore(storeConfig Config) (types.Store, error) {
	var (
		configStore      types.ConfigStore
		recordStore      types.RecordStore
		certificateStore types.CertificateStore
		cursorStore      types.CursorStore
		db               *sql.DB
		err              error
	)

	switch storeConfig.ConfigStoreType {
	case types.InMemoryStore, "":
		configStore = inmemorystore.NewConfigStore()
	case types.FileStore:
		configStore, err = filestore.NewConfigStore(storeConfig.BaseDir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf(
			"unsupported config store type %s", storeConfig.ConfigStoreType,
		)
	}

	switch storeConfig.AppDataStoreType {
	case types.InMemoryStore, "":
		recordStore = inmemorystore.NewRecordStore()
		certificateStore = inmemorystore.NewCertificateStore()
		cursorStore = inmemorystore.NewCursorStore()
	case types.KVStore:
		recordStore, err = kvstore.NewRecordStore(storeConfig.BaseDir, nil)
		if err != nil {
			return nil, err
		}
		certificateStore, err = kvstore.NewCertificateStore(storeConfig.BaseDir, nil)
		if err != nil {
			return nil, err
		}
		cursorStore, err = kvstore.NewCursorStore(storeConfig.BaseDir, nil)
		if err != nil {
			return nil, err
		}
	case types.SQLStore:
		db, err = sqlstore.OpenDb(storeConfig.BaseDir)
		if err != nil {
			return nil, err
		}
		recordStore = sqlstore.NewRecordStore(db)
		certificateStore = sqlstore.NewCertificateStore(db)
		cursorStore = sqlstore.NewCursorStore(db)
	default:
		return nil, fmt.Errorf(
			"unsupported app data store type %s", storeConfig.AppDataStoreType,
		)
	}

	return &service{
		configStore:      configStore,
		recordStore:      recordStore,
		certificateStore: certificateStore,
		cursorStore:      cursorStore,
		db:               db,
	}, nil
}

func (s *service) ConfigStore() types.ConfigStore {
	return s.configStore
}

func (s *service) RecordStore() types.RecordStore {
	return s.recordStore
}

func (s *service) CertificateStore() types.CertificateStore {
	return s.certificateStore
}

func (s *service) CursorStore() types.CursorStore {
	return s.cursorStore
}

func (s *service) Clean(ctx context.Context) {
	// nolint
	s.recordStore.Clean(ctx)
	// nolint
	s.certificateStore.Clean(ctx)
	// nolint
	s.cursorStore.Clean(ctx)
}

func (s *service) Close() {
	s.recordStore.Close()
	s.certificateStore.Close()
	s.cursorStore.Close()
	s.configStore.Close()
	if s.db != nil {
		// nolint
		s.db.Close()
	}
}
