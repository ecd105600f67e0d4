package banking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/id"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/platform/otel"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

// ErrNotConfigured indicates the reconciler is missing wiring.
var ErrNotConfigured = errors.New("banking reconciler is not configured")

// ErrZeroAmount rejects booking a transaction of 0.00.
var ErrZeroAmount = apperrors.New(apperrors.CodeInvalid, "transaction amount is zero")

// ErrCreditSpent refuses an undo whose overpayment credit has since been
// used for other dues.
var ErrCreditSpent = apperrors.New(apperrors.CodeTransactionState, "overpayment credit has already been used")

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Matched     int
	Categorized int
	Unmatched   int
	// Failed counts transactions left unmatched because booking them failed.
	Failed       int
	Overpayments decimal.Decimal
	Allocations  int
}

// Deps wires the Reconciler.
type Deps struct {
	Store        Store
	Members      Members
	Dues         Dues
	Ledger       Ledger
	Associations Associations
	Guard        Guard
	Parsers      Parsers
	Notifier     Notifier
	// Compile builds the per-association scripted categorizer; nil
	// disables scripts.
	Compile ScriptCompiler
	// DefaultRules apply after association rules.
	DefaultRules []Rule
	Clock        func() time.Time
	NewID        func() (string, error)
}

// Reconciler imports statements and books transactions.
type Reconciler struct {
	store        Store
	members      Members
	dues         Dues
	ledger       Ledger
	associations Associations
	guard        Guard
	parsers      Parsers
	notifier     Notifier
	compile      ScriptCompiler
	defaultRules []Rule
	clock        func() time.Time
	newID        func() (string, error)
	tracer       trace.Tracer
}

// NewReconciler constructs banking use-cases.
func NewReconciler(deps Deps) *Reconciler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = id.NewID
	}
	return &Reconciler{
		store:        deps.Store,
		members:      deps.Members,
		dues:         deps.Dues,
		ledger:       deps.Ledger,
		associations: deps.Associations,
		guard:        deps.Guard,
		parsers:      deps.Parsers,
		notifier:     deps.Notifier,
		compile:      deps.Compile,
		defaultRules: deps.DefaultRules,
		clock:        deps.Clock,
		newID:        deps.NewID,
		tracer:       otel.Tracer("banking"),
	}
}

func (r *Reconciler) ready() error {
	if r == nil || r.store == nil || r.members == nil || r.dues == nil || r.ledger == nil || r.associations == nil {
		return ErrNotConfigured
	}
	return nil
}

func (r *Reconciler) require(ctx context.Context, associationID string, role association.Role) (association.Membership, error) {
	if err := r.ready(); err != nil {
		return association.Membership{}, err
	}
	if r.guard == nil {
		return association.Membership{}, association.ErrPermissionDenied
	}
	return r.guard.RequireRole(ctx, associationID, role)
}

// Import reads a statement with the named profile. Requires board.
func (r *Reconciler) Import(ctx context.Context, associationID, profile, filename string, body io.Reader) (ImportResult, error) {
	membership, err := r.require(ctx, associationID, association.RoleBoard)
	if err != nil {
		return ImportResult{}, err
	}
	return r.ImportSystem(ctx, associationID, profile, filename, body, membership.UserID)
}

// ImportSystem imports without an access check. Duplicate lines are counted
// and skipped, so importing the same file twice adds nothing.
func (r *Reconciler) ImportSystem(ctx context.Context, associationID, profile, filename string, body io.Reader, createdBy string) (ImportResult, error) {
	if err := r.ready(); err != nil {
		return ImportResult{}, err
	}
	if r.parsers == nil {
		return ImportResult{}, ErrNotConfigured
	}
	ctx, span := r.tracer.Start(ctx, "banking.Import", trace.WithAttributes(
		attribute.String("association.id", associationID),
		attribute.String("import.profile", profile),
	))
	defer span.End()

	associationID = strings.TrimSpace(associationID)
	assoc, err := r.associations.Load(ctx, associationID)
	if err != nil {
		return ImportResult{}, err
	}
	parser, err := r.parsers.Parser(profile)
	if err != nil {
		return ImportResult{}, err
	}
	rows, rowErrors, err := parser.Parse(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse statement")
		return ImportResult{}, apperrors.Wrap(apperrors.CodeImportMalformed, fmt.Sprintf("read statement: %v", err), err)
	}

	importID, err := r.newID()
	if err != nil {
		return ImportResult{}, err
	}
	now := r.clock().UTC()
	imp := Import{
		ID:            importID,
		AssociationID: associationID,
		Filename:      strings.TrimSpace(filename),
		Profile:       profile,
		CreatedBy:     createdBy,
		CreatedAt:     now,
	}
	if err := r.store.CreateImport(ctx, imp); err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{ImportID: importID, Total: len(rows) + len(rowErrors), Failed: rowErrors}
	for _, row := range rows {
		if row.Currency != "" && !strings.EqualFold(row.Currency, assoc.Currency) {
			result.Failed = append(result.Failed, RowError{Line: row.Line, Message: fmt.Sprintf("currency %s is not %s", row.Currency, assoc.Currency)})
			continue
		}
		if money.Round(row.Amount).IsZero() {
			result.Failed = append(result.Failed, RowError{Line: row.Line, Message: "amount is zero"})
			continue
		}
		if assoc.IBAN != "" && row.AccountIBAN != "" && NormalizeIBAN(row.AccountIBAN) != assoc.IBAN {
			result.Failed = append(result.Failed, RowError{Line: row.Line, Message: "statement belongs to another account"})
			continue
		}
		txID, err := r.newID()
		if err != nil {
			return result, err
		}
		tx := Transaction{
			ID:               txID,
			AssociationID:    associationID,
			ImportID:         importID,
			ExternalID:       strings.TrimSpace(row.ExternalID),
			Fingerprint:      Fingerprint(row.BookingDate, row.Amount, row.Description, row.CounterpartyIBAN),
			BookingDate:      row.BookingDate,
			Amount:           money.Round(row.Amount),
			Currency:         assoc.Currency,
			Description:      strings.TrimSpace(row.Description),
			CounterpartyName: strings.TrimSpace(row.CounterpartyName),
			CounterpartyIBAN: NormalizeIBAN(row.CounterpartyIBAN),
			Status:           StatusUnmatched,
			Credited:         decimal.Zero,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := r.store.InsertTransaction(ctx, tx); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				result.Duplicates++
				continue
			}
			return result, err
		}
		result.Imported++
	}

	imp.Total = result.Total
	imp.Imported = result.Imported
	imp.Duplicates = result.Duplicates
	imp.Failed = len(result.Failed)
	if err := r.store.UpdateImport(ctx, imp); err != nil {
		return result, err
	}
	span.SetAttributes(
		attribute.Int("import.imported", result.Imported),
		attribute.Int("import.duplicates", result.Duplicates),
		attribute.Int("import.failed", len(result.Failed)),
	)
	r.notify(ctx, Event{
		Topic:         EventImportCompleted,
		AssociationID: associationID,
		DedupeKey:     "import:" + importID,
		Payload: map[string]string{
			"import_id":  importID,
			"filename":   imp.Filename,
			"imported":   fmt.Sprint(result.Imported),
			"duplicates": fmt.Sprint(result.Duplicates),
			"failed":     fmt.Sprint(len(result.Failed)),
		},
	})
	return result, nil
}

// ReconcilePending books every unmatched transaction. Requires board.
func (r *Reconciler) ReconcilePending(ctx context.Context, associationID string) (ReconcileReport, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return ReconcileReport{}, err
	}
	return r.ReconcilePendingSystem(ctx, associationID)
}

// ReconcilePendingSystem reconciles without an access check. Each
// transaction is booked atomically. A transaction that cannot be booked
// stays unmatched and the run continues.
func (r *Reconciler) ReconcilePendingSystem(ctx context.Context, associationID string) (ReconcileReport, error) {
	if err := r.ready(); err != nil {
		return ReconcileReport{}, err
	}
	ctx, span := r.tracer.Start(ctx, "banking.ReconcilePending", trace.WithAttributes(attribute.String("association.id", associationID)))
	defer span.End()

	associationID = strings.TrimSpace(associationID)
	report := ReconcileReport{Overpayments: decimal.Zero}
	assoc, err := r.associations.Load(ctx, associationID)
	if err != nil {
		return report, err
	}
	pending, err := r.store.ListTransactions(ctx, associationID, TransactionFilter{Status: StatusUnmatched})
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		return report, nil
	}
	members, err := r.members.All(ctx, associationID)
	if err != nil {
		return report, err
	}
	categorizer, err := r.categorizer(ctx, associationID)
	if err != nil {
		return report, err
	}
	accounts, err := r.ledger.Accounts(ctx, associationID)
	if err != nil {
		return report, err
	}

	log := logging.FromContext(ctx)
	skip := func(tx Transaction, err error) {
		span.RecordError(err)
		log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("transaction left unmatched")
		report.Failed++
		report.Unmatched++
	}
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if tx.Amount.IsZero() {
			report.Unmatched++
			continue
		}
		if tx.Incoming() {
			if m, method, ok := MatchMember(tx, members); ok {
				applied, err := r.applyPayment(ctx, assoc, tx, m, nil)
				if errors.Is(err, apperrors.ErrConflict) {
					continue
				}
				if err != nil {
					skip(tx, fmt.Errorf("book payment: %w", err))
					continue
				}
				log.Debug().
					Str("transaction_id", tx.ID).
					Str("member_id", m.ID).
					Str("match", string(method)).
					Msg("payment matched")
				report.Matched++
				report.Allocations += len(applied.Allocations)
				report.Overpayments = report.Overpayments.Add(applied.Transaction.Credited)
				continue
			}
		}
		code, ok, err := categorizer.Categorize(ctx, tx)
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("categorize transaction")
			ok = false
		}
		if !ok || !categoryAllowed(accounts, code) {
			report.Unmatched++
			continue
		}
		if err := r.applyCategory(ctx, tx, code, ""); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				continue
			}
			skip(tx, fmt.Errorf("book transaction: %w", err))
			continue
		}
		report.Categorized++
	}
	span.SetAttributes(
		attribute.Int("reconcile.matched", report.Matched),
		attribute.Int("reconcile.categorized", report.Categorized),
		attribute.Int("reconcile.unmatched", report.Unmatched),
		attribute.Int("reconcile.failed", report.Failed),
	)
	return report, nil
}

func (r *Reconciler) categorizer(ctx context.Context, associationID string) (Categorizer, error) {
	rules, err := r.store.ListRules(ctx, associationID)
	if err != nil {
		return nil, err
	}
	chain := Chain{}
	if r.compile != nil {
		script, err := r.store.GetScript(ctx, associationID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(script) != "" {
			scripted, err := r.compile(script)
			if err != nil {
				logging.FromContext(ctx).Warn().Err(err).Str("association_id", associationID).Msg("categorization script skipped")
			} else {
				chain = append(chain, scripted)
			}
		}
	}
	return append(chain, NewRuleSet(rules, r.defaultRules)), nil
}

func categoryAllowed(accounts map[string]ledger.Account, code string) bool {
	account, ok := accounts[code]
	return ok && account.Code != ledger.AccountBank
}

func (r *Reconciler) applyPayment(ctx context.Context, assoc association.Association, tx Transaction, m member.Member, periods []contribution.Period) (PaymentApplication, error) {
	contributions, err := r.dues.AllForMember(ctx, assoc.ID, m.ID)
	if err != nil {
		return PaymentApplication{}, err
	}
	plan := PlanAllocation(PlanInput{
		Amount:        tx.Amount,
		BookingDate:   tx.BookingDate,
		Hint:          ExtractPeriods(tx.Description, tx.BookingDate),
		MonthlyDue:    m.MonthlyDue(assoc),
		Contributions: contributions,
		ForcePeriods:  periods,
	})

	application := PaymentApplication{}
	for _, share := range plan.Allocation.Shares {
		if share.Missing {
			posting, err := r.dues.PrepareDues(assoc, m, share.Period)
			if err != nil {
				return PaymentApplication{}, err
			}
			application.NewDues = append(application.NewDues, posting)
		}
		application.Allocations = append(application.Allocations, PaymentAllocation{
			TransactionID: tx.ID,
			MemberID:      m.ID,
			Period:        share.Period,
			Amount:        share.Amount,
		})
	}

	lines := []ledger.Line{ledger.Debit(ledger.AccountBank, tx.Amount)}
	if plan.Allocation.Allocated.IsPositive() {
		lines = append(lines, ledger.Credit(ledger.AccountReceivable, plan.Allocation.Allocated))
	}
	if plan.Allocation.Overpayment.IsPositive() {
		lines = append(lines, ledger.Credit(ledger.AccountPrepaid, plan.Allocation.Overpayment))
	}
	entry, err := r.newEntry(tx, ledger.SourceBank, fmt.Sprintf("Betaling %s: %s", m.Name, tx.Description), lines)
	if err != nil {
		return PaymentApplication{}, err
	}

	tx.Status = StatusMatched
	tx.MemberID = m.ID
	tx.AccountCode = ""
	tx.EntryID = entry.ID
	tx.Credited = plan.Allocation.Overpayment
	tx.UpdatedAt = r.clock().UTC()
	application.Transaction = tx
	application.Entry = entry
	if err := r.store.ApplyPayment(ctx, application); err != nil {
		return PaymentApplication{}, err
	}

	if m.UserID != "" {
		r.notify(ctx, Event{
			Topic:         EventPaymentReceived,
			AssociationID: assoc.ID,
			UserID:        m.UserID,
			DedupeKey:     "payment:" + tx.ID + ":" + entry.ID,
			Payload: map[string]string{
				"transaction_id": tx.ID,
				"amount":         money.FormatStored(tx.Amount),
				"strategy":       string(plan.Strategy),
				"credited":       money.FormatStored(tx.Credited),
			},
		})
	}
	return application, nil
}

func (r *Reconciler) applyCategory(ctx context.Context, tx Transaction, code, note string) error {
	if tx.Amount.IsZero() {
		return ErrZeroAmount
	}
	amount := tx.Amount.Abs()
	var lines []ledger.Line
	if tx.Incoming() {
		lines = []ledger.Line{ledger.Debit(ledger.AccountBank, amount), ledger.Credit(code, amount)}
	} else {
		lines = []ledger.Line{ledger.Debit(code, amount), ledger.Credit(ledger.AccountBank, amount)}
	}
	entry, err := r.newEntry(tx, ledger.SourceBank, tx.Description, lines)
	if err != nil {
		return err
	}
	tx.Status = StatusCategorized
	tx.AccountCode = code
	tx.EntryID = entry.ID
	if note != "" {
		tx.Note = note
	}
	tx.UpdatedAt = r.clock().UTC()
	return r.store.ApplyCategorization(ctx, tx, &entry)
}

func (r *Reconciler) newEntry(tx Transaction, source ledger.Source, description string, lines []ledger.Line) (ledger.Entry, error) {
	entryID, err := r.newID()
	if err != nil {
		return ledger.Entry{}, err
	}
	entry := ledger.Entry{
		ID:            entryID,
		AssociationID: tx.AssociationID,
		Date:          tx.BookingDate,
		Description:   strings.TrimSpace(description),
		Source:        source,
		SourceRef:     tx.ID,
		Lines:         lines,
		CreatedAt:     r.clock().UTC(),
	}
	if err := entry.Validate(nil); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (r *Reconciler) loadUnmatched(ctx context.Context, associationID, transactionID string) (Transaction, error) {
	tx, err := r.store.GetTransaction(ctx, strings.TrimSpace(associationID), strings.TrimSpace(transactionID))
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusUnmatched {
		return Transaction{}, apperrors.Newf(apperrors.CodeTransactionState, "transaction is %s, not unmatched", tx.Status)
	}
	return tx, nil
}

// AssignToMember books an incoming transaction as a payment by memberID,
// optionally to the given periods. Requires board.
func (r *Reconciler) AssignToMember(ctx context.Context, associationID, transactionID, memberID string, periods []contribution.Period) (PaymentApplication, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return PaymentApplication{}, err
	}
	tx, err := r.loadUnmatched(ctx, associationID, transactionID)
	if err != nil {
		return PaymentApplication{}, err
	}
	if !tx.Incoming() {
		return PaymentApplication{}, apperrors.New(apperrors.CodeTransactionState, "only incoming transactions can be assigned to a member")
	}
	for _, period := range periods {
		if !period.Valid() {
			return PaymentApplication{}, apperrors.Newf(apperrors.CodeInvalidPeriod, "invalid period %s", period)
		}
	}
	assoc, err := r.associations.Load(ctx, tx.AssociationID)
	if err != nil {
		return PaymentApplication{}, err
	}
	m, err := r.members.Load(ctx, tx.AssociationID, strings.TrimSpace(memberID))
	if err != nil {
		return PaymentApplication{}, err
	}
	application, err := r.applyPayment(ctx, assoc, tx, m, periods)
	if errors.Is(err, apperrors.ErrConflict) {
		return PaymentApplication{}, apperrors.New(apperrors.CodeTransactionState, "transaction changed concurrently")
	}
	return application, err
}

// Categorize books a transaction to accountCode. Requires board.
func (r *Reconciler) Categorize(ctx context.Context, associationID, transactionID, accountCode, note string) (Transaction, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return Transaction{}, err
	}
	tx, err := r.loadUnmatched(ctx, associationID, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	accounts, err := r.ledger.Accounts(ctx, tx.AssociationID)
	if err != nil {
		return Transaction{}, err
	}
	accountCode = strings.TrimSpace(accountCode)
	if !categoryAllowed(accounts, accountCode) {
		return Transaction{}, apperrors.Newf(apperrors.CodeCategorizationInvalid, "account %q cannot be used for categorization", accountCode)
	}
	if err := r.applyCategory(ctx, tx, accountCode, strings.TrimSpace(note)); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return Transaction{}, apperrors.New(apperrors.CodeTransactionState, "transaction changed concurrently")
		}
		return Transaction{}, err
	}
	return r.store.GetTransaction(ctx, tx.AssociationID, tx.ID)
}

// Ignore marks a transaction as not needing a booking. Requires board.
func (r *Reconciler) Ignore(ctx context.Context, associationID, transactionID, note string) (Transaction, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return Transaction{}, err
	}
	tx, err := r.loadUnmatched(ctx, associationID, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusIgnored
	tx.Note = strings.TrimSpace(note)
	tx.UpdatedAt = r.clock().UTC()
	if err := r.store.ApplyCategorization(ctx, tx, nil); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return Transaction{}, apperrors.New(apperrors.CodeTransactionState, "transaction changed concurrently")
		}
		return Transaction{}, err
	}
	return tx, nil
}

// Undo reverts a matched, categorized or ignored transaction to unmatched.
// Allocations and credit are rolled back and the journal entry gets a
// reversal entry. The undo fails with ErrCreditSpent when the member's credit
// no longer covers what the transaction credited. Requires board.
func (r *Reconciler) Undo(ctx context.Context, associationID, transactionID string) (Transaction, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return Transaction{}, err
	}
	tx, err := r.store.GetTransaction(ctx, strings.TrimSpace(associationID), strings.TrimSpace(transactionID))
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status == StatusUnmatched {
		return Transaction{}, apperrors.New(apperrors.CodeTransactionState, "transaction is not reconciled")
	}

	application := UndoApplication{
		PreviousStatus: tx.Status,
		MemberID:       tx.MemberID,
		CreditReversal: tx.Credited,
	}
	if tx.Status == StatusMatched {
		allocations, err := r.store.ListAllocations(ctx, tx.AssociationID, tx.ID)
		if err != nil {
			return Transaction{}, err
		}
		application.Allocations = allocations
	}
	if tx.EntryID != "" {
		reversal, err := r.ledger.PrepareReversal(ctx, tx.AssociationID, tx.EntryID, ledger.ReasonUndo, "transactie "+tx.ID)
		if err != nil {
			return Transaction{}, err
		}
		application.Reversal = &reversal
	}

	tx.Status = StatusUnmatched
	tx.MemberID = ""
	tx.AccountCode = ""
	tx.EntryID = ""
	tx.Credited = decimal.Zero
	tx.UpdatedAt = r.clock().UTC()
	application.Transaction = tx
	if err := r.store.ApplyUndo(ctx, application); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return Transaction{}, apperrors.New(apperrors.CodeTransactionState, "transaction changed concurrently")
		}
		return Transaction{}, err
	}
	return tx, nil
}

// GetTransaction returns one transaction. Requires board.
func (r *Reconciler) GetTransaction(ctx context.Context, associationID, transactionID string) (Transaction, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return Transaction{}, err
	}
	return r.store.GetTransaction(ctx, strings.TrimSpace(associationID), strings.TrimSpace(transactionID))
}

// ListTransactions lists transactions by booking date, oldest first. Requires board.
func (r *Reconciler) ListTransactions(ctx context.Context, associationID string, filter TransactionFilter) ([]Transaction, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return r.store.ListTransactions(ctx, strings.TrimSpace(associationID), filter)
}

// ListImports lists recent imports. Requires board.
func (r *Reconciler) ListImports(ctx context.Context, associationID string) ([]Import, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return r.store.ListImports(ctx, strings.TrimSpace(associationID), 50)
}

// Allocations lists how a payment was spread. Requires board.
func (r *Reconciler) Allocations(ctx context.Context, associationID, transactionID string) ([]PaymentAllocation, error) {
	if _, err := r.require(ctx, associationID, association.RoleBoard); err != nil {
		return nil, err
	}
	return r.store.ListAllocations(ctx, strings.TrimSpace(associationID), strings.TrimSpace(transactionID))
}

func (r *Reconciler) notify(ctx context.Context, event Event) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("topic", event.Topic).Msg("notify")
	}
}
