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
	certificateStoreDir = "certificates"
)

type certificateStore struct {
	db      *badgerhold.Store
	lock    *sync.Mutex
	eventCh chan types.CertificateEvent
}

type certificateRow struct {
	Id             string
	Address        string
	Amount         uint64
	Currency       string
	Origin         types.Outpoint
	Position       types.Position
	GroupSignature string
	UserSignature  string
	Status         string
	CreatedAt      time.Time
}

func NewCertificateStore(dir string, logger badger.Logger) (types.CertificateStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, certificateStoreDir)
	}
	badgerDb, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open certificate store: %s", err)
	}
	return &certificateStore{
		db:      badgerDb,
		lock:    &sync.Mutex{},
		eventCh: make(chan types.CertificateEvent, 100),
	}, nil
}

func (s *certificateStore) AddCertificates(
	_ context.Context, certificates []types.Certificate,
) (int, error) {
	added := make([]types.Certificate, 0, len(certificates))
	for _, certificate := range certificates {
		row := toCertificateRow(certificate)
		if err := s.db.Insert(certificate.Id, &row); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				continue
			}
			return -1, err
		}
		added = append(added, certificate)
	}

	if len(added) > 0 {
		go s.sendEvent(types.CertificateEvent{
			Type: types.CertificatesAdded, Certificates: added,
		})
	}

	return len(added), nil
}

func (s *certificateStore) UpdateCertificates(
	_ context.Context, certificates []types.Certificate,
) (int, error) {
	for _, certificate := range certificates {
		row := toCertificateRow(certificate)
		if err := s.db.Upsert(certificate.Id, &row); err != nil {
			return -1, err
		}
	}
	go s.sendEvent(types.CertificateEvent{
		Type:         types.CertificatesUpdated,
		Certificates: certificates,
	})
	return len(certificates), nil
}

func (s *certificateStore) GetAllCertificates(_ context.Context) ([]types.Certificate, error) {
	var rows []certificateRow
	if err := s.db.Find(&rows, nil); err != nil {
		return nil, err
	}

	certificates := make([]types.Certificate, 0, len(rows))
	for _, row := range rows {
		certificates = append(certificates, row.toCertificate())
	}
	return certificates, nil
}

func (s *certificateStore) GetCertificates(
	_ context.Context, ids []string,
) ([]types.Certificate, error) {
	var certificates []types.Certificate
	for _, id := range ids {
		var row certificateRow
		err := s.db.Get(id, &row)
		if err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}

			return nil, err
		}
		certificates = append(certificates, row.toCertificate())
	}

	return certificates, nil
}

func (s *certificateStore) GetEventChannel() <-chan types.CertificateEvent {
	return s.eventCh
}

func (s *certificateStore) Clean(_ context.Context) error {
	if err := s.db.Badger().DropAll(); err != nil {
		return fmt.Errorf("failed to clean the certificate db: %s", err)
	}
	return nil
}

func (s *certificateStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Debugf("error on closing db: %s", err)
	}
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

func toCertificateRow(certificate types.Certificate) certificateRow {
	return certificateRow{
		Id:             certificate.Id,
		Address:        certificate.Address,
		Amount:         certificate.Amount,
		Currency:       certificate.Currency,
		Origin:         certificate.Origin,
		Position:       certificate.Position,
		GroupSignature: certificate.GroupSignature,
		UserSignature:  certificate.UserSignature,
		Status:         string(certificate.Status),
		CreatedAt:      certificate.CreatedAt,
	}
}

func (r certificateRow) toCertificate() types.Certificate {
	return types.Certificate{
		Id:             r.Id,
		Address:        r.Address,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Origin:         r.Origin,
		Position:       r.Position,
		GroupSignature: r.GroupSignature,
		UserSignature:  r.UserSignature,
		Status:         types.CertificateStatus(r.Status),
		CreatedAt:      r.CreatedAt,
	}
}
