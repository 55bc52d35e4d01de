package chain

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/saharasol/relief-admin/internal/domain"
)

// Signer holds the admin keypair that authorizes every instruction of a run.
// It replaces the browser wallet of the original platform; a missing or
// unreadable keypair is a structured precondition error, never a silent no-op.
type Signer struct {
	key solana.PrivateKey
}

// LoadSigner reads a Solana keygen file (JSON byte array).
func LoadSigner(path string) (*Signer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: keypair path is required", domain.ErrNoSigner)
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load keypair from %s: %v", domain.ErrNoSigner, path, err)
	}

	return &Signer{key: key}, nil
}

func NewSigner(key solana.PrivateKey) (*Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty private key", domain.ErrNoSigner)
	}
	return &Signer{key: key}, nil
}

func (s *Signer) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// Sign signs tx with the admin key, which must be the fee payer.
func (s *Signer) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
