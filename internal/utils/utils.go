package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tessera-cash/wallet-sdk/types"
	"golang.org/x/crypto/pbkdf2"
)

var ErrInsufficientFunds = errors.New("not enough funds to cover the requested amount")

// CoinSelect picks inputs covering amount plus fees from the lock-filtered
// spendable view. Candidates are sorted by value descending and accumulated
// greedily; certificates come first when preferCertificates is set because
// they carry already-custodied value with no settlement delay.
//
// The fee grows with the input count (fees.PerInputFee per selected input),
// so the target is bumped as inputs are taken, mirroring how change is
// computed afterwards: change = selected - amount - fee.
func CoinSelect(
	inputs []types.SpendableInput, amount uint64, fees types.FeeInfo,
	preferCertificates bool,
) ([]types.SpendableInput, uint64, error) {
	candidates := make([]types.SpendableInput, len(inputs))
	copy(candidates, inputs)

	sort.SliceStable(candidates, func(i, j int) bool {
		if preferCertificates && candidates[i].FromCertificate != candidates[j].FromCertificate {
			return candidates[i].FromCertificate
		}
		return candidates[i].Amount > candidates[j].Amount
	})

	target := amount + fees.BaseFee
	selected := make([]types.SpendableInput, 0, len(candidates))
	selectedAmount := uint64(0)

	for _, candidate := range candidates {
		if selectedAmount >= target {
			break
		}
		selected = append(selected, candidate)
		selectedAmount += candidate.Amount
		target += fees.PerInputFee
	}

	if selectedAmount < target {
		return nil, 0, fmt.Errorf("%w: amount %d", ErrInsufficientFunds, amount)
	}

	change := selectedAmount - target
	return selected, change, nil
}

// GroupBy partitions items by the given key function, preserving the input
// order within each group.
func GroupBy[T any](items []T, keyFn func(T) string) map[string][]T {
	result := make(map[string][]T)
	for _, item := range items {
		key := keyFn(item)
		result[key] = append(result[key], item)
	}
	return result
}

func HashPassword(password []byte) []byte {
	hash := sha256.Sum256(password)
	return hash[:]
}

func EncryptAES256(privateKey, password []byte) ([]byte, error) {
	if len(privateKey) == 0 {
		return nil, fmt.Errorf("missing plaintext private key")
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("missing encryption password")
	}

	key, salt, err := deriveKey(password, nil)
	if err != nil {
		return nil, err
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, privateKey, nil)
	ciphertext = append(ciphertext, salt...)

	return ciphertext, nil
}

func DecryptAES256(encrypted, password []byte) ([]byte, error) {
	if len(encrypted) <= 32 {
		return nil, fmt.Errorf("missing encrypted private key")
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("missing decryption password")
	}

	salt := encrypted[len(encrypted)-32:]
	data := encrypted[:len(encrypted)-32]

	key, _, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, err
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	// #nosec G407
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid password")
	}
	return plaintext, nil
}

var lock = &sync.Mutex{}

// deriveKey derives a 32 byte array key from a custom passphrase
func deriveKey(password, salt []byte) ([]byte, []byte, error) {
	lock.Lock()
	defer lock.Unlock()

	if salt == nil {
		salt = make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	iterations := 10000
	keySize := 32
	key := pbkdf2.Key(password, salt, iterations, keySize, sha256.New)
	return key, salt, nil
}

type SupportedType[V any] map[string]V

func (t SupportedType[V]) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t SupportedType[V]) Supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
