package notifier

import (
	"context"
	"time"

	"github.com/saharasol/relief-admin/internal/domain"
)

// Notifier is the outbound progress reporting port. Deliveries are best
// effort: a failed notification never fails the operation it describes.
type Notifier interface {
	Notify(ctx context.Context, event Event) (*Receipt, error)
}

// Event is one operation progress update pushed to the configured endpoint.
type Event struct {
	OperationID string                 `json:"operationId"`
	Action      domain.ActionKind      `json:"action"`
	Status      domain.OperationStatus `json:"status"`
	Total       int                    `json:"total"`
	Succeeded   int                    `json:"succeeded"`
	Failed      int                    `json:"failed"`
	Skipped     int                    `json:"skipped"`
	At          time.Time              `json:"at"`
}

// Receipt stores endpoint call metadata for audit logging.
type Receipt struct {
	StatusCode int
	Body       string
	RequestID  string
}
