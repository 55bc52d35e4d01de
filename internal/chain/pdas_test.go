package chain

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

var (
	testProgramID = solana.MustPublicKeyFromBase58(DefaultProgramID)
	testAdmin     = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testAuthority = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

func TestPDADerivationIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := AdminActionPDA(testProgramID, testAdmin, 42)
	if err != nil {
		t.Fatalf("AdminActionPDA() error = %v", err)
	}
	second, err := AdminActionPDA(testProgramID, testAdmin, 42)
	if err != nil {
		t.Fatalf("AdminActionPDA() error = %v", err)
	}
	if !first.Equals(second) {
		t.Fatalf("same inputs derived different addresses: %s vs %s", first, second)
	}
}

func TestAdminActionPDADistinctPerActionID(t *testing.T) {
	t.Parallel()

	seen := make(map[solana.PublicKey]uint64)
	for _, id := range []uint64{0, 1, 2, 1<<32 + 7, ^uint64(0)} {
		addr, err := AdminActionPDA(testProgramID, testAdmin, id)
		if err != nil {
			t.Fatalf("AdminActionPDA(%d) error = %v", id, err)
		}
		if prev, ok := seen[addr]; ok {
			t.Fatalf("action ids %d and %d derived the same address %s", prev, id, addr)
		}
		seen[addr] = id
	}
}

func TestNGOPDADistinctPerAuthority(t *testing.T) {
	t.Parallel()

	first, err := NGOPDA(testProgramID, testAdmin)
	if err != nil {
		t.Fatalf("NGOPDA() error = %v", err)
	}
	second, err := NGOPDA(testProgramID, testAuthority)
	if err != nil {
		t.Fatalf("NGOPDA() error = %v", err)
	}
	if first.Equals(second) {
		t.Fatal("different authorities derived the same ngo address")
	}
}
