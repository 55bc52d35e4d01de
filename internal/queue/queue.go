package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/saharasol/relief-admin/internal/domain"
)

// Publisher publishes operation messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg OperationMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg OperationMessage) error

// Consumer consumes operation messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedActions = []domain.ActionKind{
	domain.ActionVerify,
	domain.ActionRevokeVerification,
	domain.ActionActivate,
	domain.ActionDeactivate,
	domain.ActionBlacklist,
	domain.ActionRemoveBlacklist,
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 3
)

// QueueName returns the action work queue name, e.g. ops.verify.
func QueueName(action domain.ActionKind) string {
	return fmt.Sprintf("ops.%s", actionRoutingKey(action))
}

// DLQName returns the dead-letter queue name for an action, e.g. dlq.ops.verify.
func DLQName(action domain.ActionKind) string {
	return fmt.Sprintf("dlq.%s", QueueName(action))
}

// WorkQueueNames returns all action work queues (6 total).
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedActions))
	for _, action := range supportedActions {
		queues = append(queues, QueueName(action))
	}
	return queues
}

// DLQNames returns all dead-letter queues (6 total).
func DLQNames() []string {
	queues := make([]string, 0, len(supportedActions))
	for _, action := range supportedActions {
		queues = append(queues, DLQName(action))
	}
	return queues
}

// PriorityValue maps the submission strategy to RabbitMQ message priority.
// Sequential operations carry irreversible actions, so they jump the line.
func PriorityValue(strategy domain.Strategy) uint8 {
	switch strategy {
	case domain.StrategySequential:
		return 3
	case domain.StrategyBundled:
		return 2
	default:
		return 0
	}
}

func actionRoutingKey(action domain.ActionKind) string {
	return strings.ReplaceAll(strings.ToLower(action.String()), "_", "-")
}
