package core

import (
	"context"

	"github.com/jllopis/avatar/pkg/procedure"
)

// KnowledgeStore is the agent's fact memory as seen by the control core.
type KnowledgeStore interface {
	SetHoldingObject(ctx context.Context, agentID, objectID string, ts uint64) error
	DecayShortTermImportance(ctx context.Context) int
	RecordEntityExperience(ctx context.Context, ts uint64) int
	InitAgent(agentID, ownerID, traits string)
}

// PerceptionBridge turns world-simulation messages into store updates.
type PerceptionBridge interface {
	ProcessMessage(ctx context.Context, payload string) ([]Handle, error)
	LatestTimestamp() uint64
}

// PredicatesUpdater derives predicates for entities the bridge touched.
type PredicatesUpdater interface {
	Update(ctx context.Context, handles []Handle, ts uint64) error
}

// ProcedureRepository stores procedures uniquely by name.
type ProcedureRepository interface {
	Contains(name string) bool
	Get(name string) (procedure.Procedure, bool)
	Add(p procedure.Procedure) error
	Remove(name string) bool
}

// ProcedureInterpreter runs procedures.
type ProcedureInterpreter interface {
	Run(ctx context.Context, p procedure.Procedure, args []any) (any, error)
	RunCycle(ctx context.Context) error
}

// RuleEngine selects and runs the agent's next action.
type RuleEngine interface {
	AddLearnedSchema(name string)
	IsLearned(name string) bool
	TryExecuteSchema(ctx context.Context, name string) error
	ProcessNextAction(ctx context.Context) error
	RunSchemaForCurrentAction(ctx context.Context) error
}

// ModeHandler advances the behavior of the current agent mode.
type ModeHandler interface {
	Update(ctx context.Context, ts uint64) error
}

// Transport delivers messages to and from the message router.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Inbound() <-chan Message
	Deregister(ctx context.Context) error
}
