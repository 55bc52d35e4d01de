package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = time.Second
)

// Submitter sends instructions to the cluster and awaits confirmation. Both
// shapes resolve to "submit and await confirmation"; the bundle shape packs
// several instructions into one transaction so one signature covers them all.
type Submitter interface {
	SubmitBundle(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)
	SubmitSingle(ctx context.Context, instruction solana.Instruction) (solana.Signature, error)
}

// RPCSubmitter submits via a Solana JSON-RPC endpoint, signing with the admin
// keypair and confirming by polling signature statuses.
type RPCSubmitter struct {
	client         *rpc.Client
	signer         *Signer
	logger         *zap.Logger
	confirmTimeout time.Duration
	pollInterval   time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewRPCSubmitter(client *rpc.Client, signer *Signer, logger *zap.Logger) (*RPCSubmitter, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RPCSubmitter{
		client:         client,
		signer:         signer,
		logger:         logger,
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
		sleep:          sleepWithContext,
	}, nil
}

func (s *RPCSubmitter) SubmitBundle(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	if len(instructions) == 0 {
		return solana.Signature{}, fmt.Errorf("at least one instruction is required")
	}
	return s.submit(ctx, instructions)
}

func (s *RPCSubmitter) SubmitSingle(ctx context.Context, instruction solana.Instruction) (solana.Signature, error) {
	if instruction == nil {
		return solana.Signature{}, fmt.Errorf("instruction is required")
	}
	return s.submit(ctx, []solana.Instruction{instruction})
}

func (s *RPCSubmitter) submit(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	blockhash, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, Classify(fmt.Errorf("failed to fetch blockhash: %w", err), solana.Signature{})
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(s.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, Classify(fmt.Errorf("failed to build transaction: %w", err), solana.Signature{})
	}

	if err := s.signer.Sign(tx); err != nil {
		return solana.Signature{}, Classify(err, solana.Signature{})
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return sig, Classify(err, sig)
	}

	s.logger.Debug("transaction sent",
		zap.String("signature", sig.String()),
		zap.Int("instructions", len(instructions)),
	)

	if err := s.confirm(ctx, sig); err != nil {
		return sig, err
	}

	return sig, nil
}

func (s *RPCSubmitter) confirm(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(s.confirmTimeout)

	for {
		statuses, err := s.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return Classify(fmt.Errorf("transaction failed on-chain: %v", status.Err), sig)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}

		if time.Now().After(deadline) {
			return Classify(fmt.Errorf("confirmation timed out for %s", sig), sig)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return Classify(err, sig)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
