package walletstore

type WalletData struct {
	EncryptedKey []byte
	PasswordHash []byte
	PubKey       []byte
}

type WalletStore interface {
	AddWallet(data WalletData) error
	GetWallet() (*WalletData, error)
}
