package queue

import (
	"fmt"
	"strings"

	"github.com/saharasol/relief-admin/internal/domain"
)

// OperationMessage is the broker payload that hands an accepted operation to a
// worker. The full target list stays in Postgres; only identifiers travel.
type OperationMessage struct {
	OperationID string            `json:"operationId"`
	Action      domain.ActionKind `json:"action"`
	Strategy    domain.Strategy   `json:"strategy"`
	AdminKey    string            `json:"adminKey,omitempty"`
}

func (m OperationMessage) Validate() error {
	if strings.TrimSpace(m.OperationID) == "" {
		return fmt.Errorf("operationId is required")
	}
	if !m.Action.IsValid() {
		return fmt.Errorf("invalid action %q", m.Action)
	}
	if !m.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy %q", m.Strategy)
	}
	return nil
}
