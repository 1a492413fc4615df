package inmemorystore

import (
	"context"
	"sync"
	"time"

	"github.com/tessera-cash/wallet-sdk/types"
)

type certificateStore struct {
	lock         *sync.RWMutex
	certificates map[string]types.Certificate

	sendLock *sync.Mutex
	eventCh  chan types.CertificateEvent
}

func NewCertificateStore() types.CertificateStore {
	return &certificateStore{
		lock:         &sync.RWMutex{},
		certificates: make(map[string]types.Certificate),
		sendLock:     &sync.Mutex{},
		eventCh:      make(chan types.CertificateEvent, 100),
	}
}

func (s *certificateStore) AddCertificates(
	_ context.Context, certificates []types.Certificate,
) (int, error) {
	s.lock.Lock()
	added := make([]types.Certificate, 0, len(certificates))
	for _, certificate := range certificates {
		if _, ok := s.certificates[certificate.Id]; ok {
			continue
		}
		s.certificates[certificate.Id] = certificate
		added = append(added, certificate)
	}
	s.lock.Unlock()

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
	s.lock.Lock()
	for _, certificate := range certificates {
		s.certificates[certificate.Id] = certificate
	}
	s.lock.Unlock()

	go s.sendEvent(types.CertificateEvent{
		Type:         types.CertificatesUpdated,
		Certificates: certificates,
	})
	return len(certificates), nil
}

func (s *certificateStore) GetAllCertificates(_ context.Context) ([]types.Certificate, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	certificates := make([]types.Certificate, 0, len(s.certificates))
	for _, certificate := range s.certificates {
		certificates = append(certificates, certificate)
	}
	return certificates, nil
}

func (s *certificateStore) GetCertificates(
	_ context.Context, ids []string,
) ([]types.Certificate, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var certificates []types.Certificate
	for _, id := range ids {
		if certificate, ok := s.certificates[id]; ok {
			certificates = append(certificates, certificate)
		}
	}
	return certificates, nil
}

func (s *certificateStore) GetEventChannel() <-chan types.CertificateEvent {
	return s.eventCh
}

func (s *certificateStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.certificates = make(map[string]types.Certificate)
	return nil
}

func (s *certificateStore) Close() {}

func (s *certificateStore) sendEvent(event types.CertificateEvent) {
	s.sendLock.Lock()
	defer s.sendLock.Unlock()

	select {
	case s.eventCh <- event:
		return
	default:
		time.Sleep(100 * time.Millisecond)
	}
}
