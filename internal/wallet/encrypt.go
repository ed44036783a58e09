package wallet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"

	ourcrypto "github.com/fabhost/agent/infrastructure/crypto"
)

const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	envelopeInfo = "fabhost-wallet-v1"
)

// EncryptedBlob is the on-disk shape of an encrypted wallet: the envelope
// ciphertext plus the scrypt salt needed to re-derive the key at decrypt
// time.
type EncryptedBlob struct {
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Ciphertext string `json:"ciphertext"`
}

func deriveMasterKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("wallet: deriving key from password: %w", err)
	}
	return key, nil
}

// Encrypt wraps w's private key in an AES-256-GCM envelope keyed by
// scrypt(password), subject = the wallet's checksummed address.
func Encrypt(w *Wallet, password string) (*EncryptedBlob, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: generating salt: %w", err)
	}

	masterKey, err := deriveMasterKey(password, salt)
	if err != nil {
		return nil, err
	}

	address := w.Address()
	plaintext := crypto.FromECDSA(w.PrivateKey)
	ciphertext, err := ourcrypto.EncryptEnvelope(masterKey, address.Bytes(), envelopeInfo, plaintext)
	if err != nil {
		return nil, fmt.Errorf("wallet: encrypting: %w", err)
	}

	return &EncryptedBlob{
		Address:    address.Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Ciphertext: string(ciphertext),
	}, nil
}

// Decrypt reverses Encrypt, returning the wallet it produced.
func Decrypt(blob *EncryptedBlob, password string) (*Wallet, error) {
	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding salt: %w", err)
	}

	masterKey, err := deriveMasterKey(password, salt)
	if err != nil {
		return nil, err
	}

	subject := common.HexToAddress(blob.Address).Bytes()

	plaintext, err := ourcrypto.DecryptEnvelope(masterKey, subject, envelopeInfo, []byte(blob.Ciphertext))
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypting (wrong password?): %w", err)
	}

	priv, err := crypto.ToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("wallet: parsing decrypted key: %w", err)
	}
	return &Wallet{PrivateKey: priv}, nil
}

// Backup is the durable, checksum-protected wrapper Encrypt's output is
// stored in.
type Backup struct {
	Version    int    `json:"version"`
	Encrypted  string `json:"encrypted"`
	Checksum   string `json:"checksum"`
}

// BackupIntegrityError is returned by RestoreFromBackup when the stored
// checksum does not match the encrypted payload.
type BackupIntegrityError struct {
	Expected string
	Actual   string
}

func (e *BackupIntegrityError) Error() string {
	return fmt.Sprintf("wallet: backup integrity check failed: expected checksum %s, got %s", e.Expected, e.Actual)
}

// CreateBackup wraps the encrypted wallet blob with a SHA-256 checksum over
// its serialized form.
func CreateBackup(w *Wallet, password string) (*Backup, error) {
	blob, err := Encrypt(w, password)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("wallet: marshaling blob: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return &Backup{
		Version:   1,
		Encrypted: string(encoded),
		Checksum:  base64.StdEncoding.EncodeToString(sum[:]),
	}, nil
}

// RestoreFromBackup verifies the checksum and decrypts the backup's payload.
func RestoreFromBackup(backup *Backup, password string) (*Wallet, error) {
	sum := sha256.Sum256([]byte(backup.Encrypted))
	actual := base64.StdEncoding.EncodeToString(sum[:])
	if actual != backup.Checksum {
		return nil, &BackupIntegrityError{Expected: backup.Checksum, Actual: actual}
	}

	var blob EncryptedBlob
	if err := json.Unmarshal([]byte(backup.Encrypted), &blob); err != nil {
		return nil, fmt.Errorf("wallet: parsing backup payload: %w", err)
	}
	return Decrypt(&blob, password)
}
