//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"market-chat/domain/event"
)

// EventSink is the live-delivery capability a transport hands to the core:
// it addresses exactly one open connection. Deliver is best-effort and must
// never block; it reports whether the event was accepted.
type EventSink interface {
	ID() string
	Deliver(e event.DomainEvent) bool
}

// IRegistry is the process-wide session registry enforcing at most one live
// connection per user. All operations are linearizable with respect to each
// other.
type IRegistry interface {
	// Register binds userID to sink. If a different connection already holds
	// a session for userID, that sink is returned so the caller can notify
	// it before it is replaced. Registering the same sink again is a no-op.
	Register(userID string, sink EventSink) (evicted EventSink)
	// Lookup returns the live sink for userID; a miss means the user is
	// offline, not an error.
	Lookup(userID string) (EventSink, bool)
	// Unregister removes whatever session the given connection holds.
	// Unknown connections are tolerated.
	Unregister(connID string)
	// ResolveUser is the authoritative reverse lookup from a physical
	// connection to the identity it is authorized to act as.
	ResolveUser(connID string) (string, bool)
	// Len returns the number of live sessions.
	Len() int
}

type WorkerName string

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding manual naming in the Worker interface.
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
