package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the deployed relief program.
const DefaultProgramID = "26jJKQHuNdAKc71J6fU6oV1UtXt5RDMamp4FpAbWyagJ"

// ConfigPDA derives the platform config account.
// Seeds: ["config"]
func ConfigPDA(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("config")}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive config pda: %w", err)
	}
	return addr, nil
}

// NGOPDA derives the NGO account for an authority.
// Seeds: ["ngo", authority]
func NGOPDA(programID, authority solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("ngo"), authority.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive ngo pda: %w", err)
	}
	return addr, nil
}

// AdminActionPDA derives the idempotent receipt account for one admin action.
// Seeds: ["admin-action", admin, action_id as little-endian u64]
func AdminActionPDA(programID, admin solana.PublicKey, actionID uint64) (solana.PublicKey, error) {
	idBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBytes, actionID)

	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("admin-action"), admin.Bytes(), idBytes},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive admin action pda: %w", err)
	}
	return addr, nil
}
