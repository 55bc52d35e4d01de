package chain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/saharasol/relief-admin/internal/domain"
)

// Program builds instructions for the relief program's admin surface. One
// builder per action kind; every instruction carries an action id that derives
// the idempotent AdminAction receipt account.
type Program struct {
	id solana.PublicKey
}

func NewProgram(programID string) (*Program, error) {
	id, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", programID, err)
	}
	return &Program{id: id}, nil
}

func (p *Program) ID() solana.PublicKey { return p.id }

// instructionName maps an action kind to the program's instruction. Activate
// and deactivate share update_ngo_status with an is_active flag.
func instructionName(action domain.ActionKind) (string, error) {
	switch action {
	case domain.ActionVerify:
		return "verify_ngo", nil
	case domain.ActionRevokeVerification:
		return "revoke_ngo_verification", nil
	case domain.ActionActivate, domain.ActionDeactivate:
		return "update_ngo_status", nil
	case domain.ActionBlacklist:
		return "blacklist_ngo", nil
	case domain.ActionRemoveBlacklist:
		return "remove_blacklist", nil
	}
	return "", fmt.Errorf("%w: no instruction for action %q", domain.ErrValidation, action)
}

// anchorDiscriminator is the 8-byte Anchor global instruction discriminator:
// sha256("global:<name>")[:8].
func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// BuildInstruction assembles one admin instruction targeting an NGO authority.
// Args are Borsh-encoded as (ngo_authority, params, action_id); account order
// matches the program: ngo, config, admin_action, admin, system_program.
func (p *Program) BuildInstruction(
	action domain.ActionKind,
	admin solana.PublicKey,
	ngoAuthority solana.PublicKey,
	reason string,
	actionID uint64,
) (solana.Instruction, error) {
	name, err := instructionName(action)
	if err != nil {
		return nil, err
	}

	ngoPDA, err := NGOPDA(p.id, ngoAuthority)
	if err != nil {
		return nil, err
	}
	configPDA, err := ConfigPDA(p.id)
	if err != nil {
		return nil, err
	}
	actionPDA, err := AdminActionPDA(p.id, admin, actionID)
	if err != nil {
		return nil, err
	}

	data, err := encodeArgs(name, action, ngoAuthority, reason, actionID)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(ngoPDA).WRITE(),
		solana.Meta(configPDA),
		solana.Meta(actionPDA).WRITE(),
		solana.Meta(admin).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}

	return solana.NewInstruction(p.id, accounts, data), nil
}

func encodeArgs(
	name string,
	action domain.ActionKind,
	ngoAuthority solana.PublicKey,
	reason string,
	actionID uint64,
) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(anchorDiscriminator(name))

	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(ngoAuthority.Bytes(), false); err != nil {
		return nil, fmt.Errorf("failed to encode ngo authority: %w", err)
	}

	// update_ngo_status params lead with the is_active flag.
	switch action {
	case domain.ActionActivate:
		if err := enc.WriteBool(true); err != nil {
			return nil, fmt.Errorf("failed to encode is_active: %w", err)
		}
	case domain.ActionDeactivate:
		if err := enc.WriteBool(false); err != nil {
			return nil, fmt.Errorf("failed to encode is_active: %w", err)
		}
	}

	if err := enc.WriteRustString(reason); err != nil {
		return nil, fmt.Errorf("failed to encode reason: %w", err)
	}
	if err := enc.WriteUint64(actionID, bin.LE); err != nil {
		return nil, fmt.Errorf("failed to encode action id: %w", err)
	}

	return buf.Bytes(), nil
}
