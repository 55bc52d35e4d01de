package chain

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/saharasol/relief-admin/internal/domain"
)

// NGOReader loads the on-chain NGO accounts the idempotence filter inspects.
type NGOReader interface {
	FetchNGO(ctx context.Context, authority solana.PublicKey) (domain.NGO, error)
}

// AccountClient reads program accounts over RPC.
type AccountClient struct {
	client  *rpc.Client
	program *Program
}

func NewAccountClient(client *rpc.Client, program *Program) (*AccountClient, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if program == nil {
		return nil, fmt.Errorf("program is required")
	}
	return &AccountClient{client: client, program: program}, nil
}

func (c *AccountClient) FetchNGO(ctx context.Context, authority solana.PublicKey) (domain.NGO, error) {
	addr, err := NGOPDA(c.program.ID(), authority)
	if err != nil {
		return domain.NGO{}, err
	}

	info, err := c.client.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return domain.NGO{}, fmt.Errorf("%w: ngo account %s", domain.ErrNotFound, addr)
		}
		return domain.NGO{}, fmt.Errorf("failed to fetch ngo account %s: %w", addr, err)
	}
	if info == nil || info.Value == nil {
		return domain.NGO{}, fmt.Errorf("%w: ngo account %s", domain.ErrNotFound, addr)
	}

	ngo, err := DecodeNGO(info.Value.Data.GetBinary())
	if err != nil {
		return domain.NGO{}, fmt.Errorf("failed to decode ngo account %s: %w", addr, err)
	}
	ngo.Address = addr.String()

	return ngo, nil
}

// accountDiscriminatorLen is the Anchor account tag preceding the Borsh body.
const accountDiscriminatorLen = 8

// DecodeNGO deserializes an NGO account's Borsh body. Fields are read in
// declaration order up to is_blacklisted; the trailing audit fields are not
// needed by the filter or the progress display.
func DecodeNGO(data []byte) (domain.NGO, error) {
	if len(data) <= accountDiscriminatorLen {
		return domain.NGO{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}

	dec := bin.NewBorshDecoder(data[accountDiscriminatorLen:])

	authorityBytes, err := dec.ReadNBytes(32)
	if err != nil {
		return domain.NGO{}, fmt.Errorf("failed to read authority: %w", err)
	}
	authority := solana.PublicKeyFromBytes(authorityBytes)

	name, err := dec.ReadRustString()
	if err != nil {
		return domain.NGO{}, fmt.Errorf("failed to read name: %w", err)
	}

	// registration_number, email, phone_number, website, description, address
	for i := 0; i < 6; i++ {
		if _, err := dec.ReadRustString(); err != nil {
			return domain.NGO{}, fmt.Errorf("failed to skip profile string %d: %w", i, err)
		}
	}

	isVerified, err := dec.ReadBool()
	if err != nil {
		return domain.NGO{}, fmt.Errorf("failed to read is_verified: %w", err)
	}
	isActive, err := dec.ReadBool()
	if err != nil {
		return domain.NGO{}, fmt.Errorf("failed to read is_active: %w", err)
	}

	// field_workers_count, beneficiaries_registered, pools_created
	for i := 0; i < 3; i++ {
		if _, err := dec.ReadUint32(bin.LE); err != nil {
			return domain.NGO{}, fmt.Errorf("failed to skip counter %d: %w", i, err)
		}
	}
	// total_aid_distributed
	if _, err := dec.ReadUint64(bin.LE); err != nil {
		return domain.NGO{}, fmt.Errorf("failed to skip total_aid_distributed: %w", err)
	}
	// verification_documents
	if _, err := dec.ReadRustString(); err != nil {
		return domain.NGO{}, fmt.Errorf("failed to skip verification_documents: %w", err)
	}
	// operating_districts, focus_areas
	for i := 0; i < 2; i++ {
		if err := skipStringVec(dec); err != nil {
			return domain.NGO{}, fmt.Errorf("failed to skip string vec %d: %w", i, err)
		}
	}
	// registered_at
	if _, err := dec.ReadInt64(bin.LE); err != nil {
		return domain.NGO{}, fmt.Errorf("failed to skip registered_at: %w", err)
	}
	// verified_at: Option<i64>
	if err := skipOption(dec, 8); err != nil {
		return domain.NGO{}, fmt.Errorf("failed to skip verified_at: %w", err)
	}
	// verified_by: Option<Pubkey>
	if err := skipOption(dec, 32); err != nil {
		return domain.NGO{}, fmt.Errorf("failed to skip verified_by: %w", err)
	}
	// last_activity_at
	if _, err := dec.ReadInt64(bin.LE); err != nil {
		return domain.NGO{}, fmt.Errorf("failed to skip last_activity_at: %w", err)
	}
	// contact_person_name, contact_person_role, bank_account_info, tax_id, notes
	for i := 0; i < 5; i++ {
		if _, err := dec.ReadRustString(); err != nil {
			return domain.NGO{}, fmt.Errorf("failed to skip contact string %d: %w", i, err)
		}
	}

	isBlacklisted, err := dec.ReadBool()
	if err != nil {
		return domain.NGO{}, fmt.Errorf("failed to read is_blacklisted: %w", err)
	}

	return domain.NGO{
		Authority:     authority.String(),
		Name:          name,
		IsVerified:    isVerified,
		IsActive:      isActive,
		IsBlacklisted: isBlacklisted,
	}, nil
}

func skipStringVec(dec *bin.Decoder) error {
	count, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := dec.ReadRustString(); err != nil {
			return err
		}
	}
	return nil
}

func skipOption(dec *bin.Decoder, size int) error {
	present, err := dec.ReadByte()
	if err != nil {
		return err
	}
	if present == 0 {
		return nil
	}
	_, err = dec.ReadNBytes(size)
	return err
}
