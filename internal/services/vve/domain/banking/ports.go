package banking

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

// StatementParser turns a bank export into statement rows. Row errors do
// not abort parsing; a returned error means the file is unreadable.
type StatementParser interface {
	Parse(r io.Reader) ([]StatementRow, []RowError, error)
}

// Parsers resolves an import profile name to its parser.
type Parsers interface {
	Parser(profile string) (StatementParser, error)
}

// ScriptCompiler turns an association's categorization script into a
// Categorizer.
type ScriptCompiler func(script string) (Categorizer, error)

// PaymentApplication is everything one member payment changes.
type PaymentApplication struct {
	Transaction Transaction
	// NewDues are contributions created for prepaid or missing months.
	NewDues     []contribution.DuesPosting
	Allocations []PaymentAllocation
	Entry       ledger.Entry
}

// UndoApplication reverts a reconciled transaction.
type UndoApplication struct {
	// Transaction is the reset transaction; PreviousStatus guards the update.
	Transaction    Transaction
	PreviousStatus Status
	MemberID       string
	Allocations    []PaymentAllocation
	CreditReversal decimal.Decimal
	Reversal       *ledger.Entry
}

// Store is the persistence boundary for imports, transactions and rules.
type Store interface {
	CreateImport(ctx context.Context, imp Import) error
	UpdateImport(ctx context.Context, imp Import) error
	ListImports(ctx context.Context, associationID string, limit int) ([]Import, error)
	// InsertTransaction fails with ErrConflict when the dedupe key exists.
	InsertTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, associationID, transactionID string) (Transaction, error)
	ListTransactions(ctx context.Context, associationID string, filter TransactionFilter) ([]Transaction, error)
	ListAllocations(ctx context.Context, associationID, transactionID string) ([]PaymentAllocation, error)

	ListRules(ctx context.Context, associationID string) ([]Rule, error)
	PutRule(ctx context.Context, rule Rule) error
	DeleteRule(ctx context.Context, associationID, ruleID string) error
	// GetScript returns "" when the association has no script.
	GetScript(ctx context.Context, associationID string) (string, error)
	PutScript(ctx context.Context, associationID, script string) error

	// ApplyPayment, ApplyCategorization and ApplyUndo each run in one
	// database transaction and fail with ErrConflict when the stored
	// transaction is no longer in the expected status.
	ApplyPayment(ctx context.Context, application PaymentApplication) error
	ApplyCategorization(ctx context.Context, tx Transaction, entry *ledger.Entry) error
	ApplyUndo(ctx context.Context, application UndoApplication) error
}

// Members is the member registry as seen by reconciliation.
type Members interface {
	All(ctx context.Context, associationID string) ([]member.Member, error)
	Load(ctx context.Context, associationID, memberID string) (member.Member, error)
}

// Dues is dues tracking as seen by reconciliation.
type Dues interface {
	AllForMember(ctx context.Context, associationID, memberID string) ([]contribution.Contribution, error)
	PrepareDues(assoc association.Association, m member.Member, period contribution.Period) (contribution.DuesPosting, error)
}

// Ledger is bookkeeping as seen by reconciliation.
type Ledger interface {
	Accounts(ctx context.Context, associationID string) (map[string]ledger.Account, error)
	PrepareReversal(ctx context.Context, associationID, entryID string, reason ledger.ReversalReason, note string) (ledger.Entry, error)
}

// Associations loads tenants without an access check.
type Associations interface {
	Load(ctx context.Context, associationID string) (association.Association, error)
}

// Guard is the tenant access check.
type Guard interface {
	RequireRole(ctx context.Context, associationID string, minimum association.Role) (association.Membership, error)
}

// Event topics raised by reconciliation.
const (
	EventPaymentReceived = "payment.received"
	EventImportCompleted = "import.completed"
)

// Event is a notable reconciliation outcome.
type Event struct {
	Topic         string
	AssociationID string
	// UserID is the recipient; empty means the association board.
	UserID    string
	DedupeKey string
	Payload   map[string]string
}

// Notifier receives reconciliation events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
