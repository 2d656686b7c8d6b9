//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"secret-santa/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need
// for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Notifier is the outbound side of the chat transport.
// Every call is a side effect on the user's screen; failures are reported, never retried here.
type Notifier interface {
	SendText(ctx context.Context, userID domain.UserID, msg domain.Message) (domain.MessageRef, error)
	EditText(ctx context.Context, ref domain.MessageRef, msg domain.Message) error
	AcknowledgeInteraction(ctx context.Context, interactionID string, text string) error
}

// EventSource is the inbound side of the chat transport.
// Delivery is at least once: the same event may come back after a failure.
type EventSource interface {
	Poll(ctx context.Context) ([]domain.Event, error)
}

// EventHandler processes one admitted event.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event) error
}

type IOrchestrator interface {
	Submit(ctx context.Context, event domain.Event) error
	Start(ctx context.Context) error
	Stop()
}
