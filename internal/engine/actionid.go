package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/saharasol/relief-admin/internal/domain"
)

// globalCounter makes ids generated in the same microsecond distinct.
var globalCounter atomic.Uint64

const maxIDAttempts = 100

// GenerateActionIDs produces count unique 64-bit action ids scoped to the
// actor's public key. Ids are reserved together, before batching, so they stay
// stable for the whole run even when a later batch fails. Each id mixes a
// per-index timestamp, the global counter, and fresh randomness XORed with the
// leading actor-key bytes.
func GenerateActionIDs(actor solana.PublicKey, count int) ([]uint64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be greater than 0", domain.ErrValidation)
	}

	ids := make([]uint64, 0, count)
	used := make(map[uint64]struct{}, count)
	actorBytes := actor.Bytes()
	base := uint64(time.Now().UnixMicro())

	for i := 0; i < count; i++ {
		var id uint64
		attempts := 0

		for {
			attempts++
			if attempts > maxIDAttempts {
				return nil, fmt.Errorf("failed to generate unique action id after %d attempts for index %d", maxIDAttempts, i)
			}

			var randBytes [8]byte
			if _, err := rand.Read(randBytes[:]); err != nil {
				return nil, fmt.Errorf("failed to read randomness: %w", err)
			}

			ts := base + uint64(i)*1_000_000 + globalCounter.Add(1)
			var tsBytes [8]byte
			binary.LittleEndian.PutUint64(tsBytes[:], ts)

			var idBytes [8]byte
			for j := 0; j < 8; j++ {
				idBytes[j] = tsBytes[j] ^ randBytes[j] ^ actorBytes[j]
			}
			id = binary.LittleEndian.Uint64(idBytes[:])

			if _, taken := used[id]; !taken {
				break
			}
		}

		used[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}
