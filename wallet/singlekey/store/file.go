package walletstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const walletFile = "wallet.json"

type fileStoreData struct {
	EncryptedKey string `json:"encrypted_key"`
	PasswordHash string `json:"password_hash"`
	PubKey       string `json:"pubkey"`
}

type fileStore struct {
	mu       *sync.Mutex
	filePath string
}

func NewFileWalletStore(dir string) (WalletStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create wallet store directory: %s", err)
	}
	return &fileStore{
		mu:       &sync.Mutex{},
		filePath: filepath.Join(dir, walletFile),
	}, nil
}

func (s *fileStore) AddWallet(data WalletData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := json.Marshal(fileStoreData{
		EncryptedKey: hex.EncodeToString(data.EncryptedKey),
		PasswordHash: hex.EncodeToString(data.PasswordHash),
		PubKey:       hex.EncodeToString(data.PubKey),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, buf, 0600)
}

func (s *fileStore) GetWallet() (*WalletData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("wallet not initialized")
		}
		return nil, err
	}

	var data fileStoreData
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, err
	}

	encryptedKey, err := hex.DecodeString(data.EncryptedKey)
	if err != nil {
		return nil, err
	}
	passwordHash, err := hex.DecodeString(data.PasswordHash)
	if err != nil {
		return nil, err
	}
	pubKey, err := hex.DecodeString(data.PubKey)
	if err != nil {
		return nil, err
	}

	return &WalletData{
		EncryptedKey: encryptedKey,
		PasswordHash: passwordHash,
		PubKey:       pubKey,
	}, nil
}
