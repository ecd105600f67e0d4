package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/ledger"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/mail"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "vve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAssociation(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.PutAssociation(ctx, association.Association{
		ID:                   "assoc-1",
		Name:                 "VvE Keizersgracht",
		Slug:                 "keizersgracht",
		IBAN:                 "NL91ABNA0417164300",
		Currency:             "EUR",
		MonthlyFee:           decimal.RequireFromString("100"),
		FiscalYearStartMonth: 1,
		CreatedAt:            testNow,
		UpdatedAt:            testNow,
	}))
	for _, m := range []member.Member{
		{ID: "mem-1", AssociationID: "assoc-1", Name: "Anna", Unit: "1A", Share: decimal.RequireFromString("0.333333"),
			IBANs: []string{"NL02RABO0123456789"}, StartDate: testNow.AddDate(-1, 0, 0), CreatedAt: testNow, UpdatedAt: testNow},
		{ID: "mem-2", AssociationID: "assoc-1", Name: "Bram", Unit: "1B", Share: decimal.RequireFromString("0.666667"),
			StartDate: testNow.AddDate(-1, 0, 0), CreatedAt: testNow, UpdatedAt: testNow},
	} {
		require.NoError(t, store.PutMember(ctx, m))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vve.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Ping(context.Background()))
	require.NoError(t, second.Close())
}

func TestUsersAndMemberships(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	for _, user := range []account.User{
		{ID: "user-1", Email: "anna@example.com", DisplayName: "Anna", Locale: "nl", CreatedAt: testNow, UpdatedAt: testNow},
		{ID: "user-2", Email: "bram@example.com", DisplayName: "Bram", Locale: "en", CreatedAt: testNow, UpdatedAt: testNow},
		{ID: "user-3", Email: "cor@example.com", DisplayName: "Cor", SuperAdmin: true, CreatedAt: testNow, UpdatedAt: testNow},
	} {
		require.NoError(t, store.PutUser(ctx, user))
	}

	got, err := store.GetUserByEmail(ctx, "cor@example.com")
	require.NoError(t, err)
	assert.True(t, got.SuperAdmin)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, store.PutMembership(ctx, association.Membership{AssociationID: "assoc-1", UserID: "user-1", Role: association.RoleMember, CreatedAt: testNow}))
	require.NoError(t, store.PutMembership(ctx, association.Membership{AssociationID: "assoc-1", UserID: "user-2", Role: association.RoleBoard, CreatedAt: testNow}))
	require.NoError(t, store.PutMembership(ctx, association.Membership{AssociationID: "assoc-1", UserID: "user-3", Role: association.RoleAdmin, CreatedAt: testNow}))

	board, err := store.ListBoardUserIDs(ctx, "assoc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2", "user-3"}, board)

	err = store.PutMembership(ctx, association.Membership{AssociationID: "missing", UserID: "user-1", Role: association.RoleMember, CreatedAt: testNow})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, store.DeleteMembership(ctx, "assoc-1", "user-1"))
	_, err = store.GetMembership(ctx, "assoc-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMembersKeepSharePrecision(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	got, err := store.GetMember(ctx, "assoc-1", "mem-1")
	require.NoError(t, err)
	assert.Equal(t, "0.333333", got.Share.String())
	assert.Equal(t, []string{"NL02RABO0123456789"}, got.IBANs)
	assert.Nil(t, got.MonthlyFeeOverride)

	ended := testNow
	got.EndDate = &ended
	require.NoError(t, store.PutMember(ctx, got))

	active, err := store.ListMembers(ctx, "assoc-1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "mem-2", active[0].ID)

	all, err := store.ListMembers(ctx, "assoc-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLedgerEntriesAndReversal(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	require.NoError(t, store.PutAccount(ctx, ledger.Account{AssociationID: "assoc-1", Code: "1100", Name: "Bank", Type: ledger.TypeAsset, System: true}))
	inUse, err := store.AccountInUse(ctx, "assoc-1", "1100")
	require.NoError(t, err)
	assert.False(t, inUse)

	entry := ledger.Entry{
		ID:            "entry-1",
		AssociationID: "assoc-1",
		Date:          testNow,
		Description:   "Insurance",
		Source:        ledger.SourceManual,
		Lines: []ledger.Line{
			{AccountCode: "4100", Debit: decimal.RequireFromString("250.50")},
			{AccountCode: "1100", Credit: decimal.RequireFromString("250.50")},
		},
		CreatedAt: testNow,
	}
	require.NoError(t, store.PutEntry(ctx, entry))

	loaded, err := store.GetEntry(ctx, "assoc-1", "entry-1")
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 2)
	assert.True(t, loaded.Lines[0].Debit.Equal(decimal.RequireFromString("250.50")))

	inUse, err = store.AccountInUse(ctx, "assoc-1", "1100")
	require.NoError(t, err)
	assert.True(t, inUse)

	reversal := entry
	reversal.ID = "entry-2"
	reversal.Source = ledger.SourceReversal
	reversal.ReversalOf = "entry-1"
	reversal.Lines = []ledger.Line{
		{AccountCode: "1100", Debit: decimal.RequireFromString("250.50")},
		{AccountCode: "4100", Credit: decimal.RequireFromString("250.50")},
	}
	require.NoError(t, store.PutEntry(ctx, reversal))

	again := reversal
	again.ID = "entry-3"
	assert.ErrorIs(t, store.PutEntry(ctx, again), apperrors.ErrConflict)

	found, err := store.GetReversal(ctx, "assoc-1", "entry-1")
	require.NoError(t, err)
	assert.Equal(t, "entry-2", found.ID)

	entries, err := store.ListEntries(ctx, "assoc-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPaymentAndUndo(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()
	march := contribution.Period{Year: 2026, Month: 3}

	require.NoError(t, store.ApplyDues(ctx, contribution.DuesPosting{
		Contribution: contribution.Contribution{
			ID: "c-1", AssociationID: "assoc-1", MemberID: "mem-1", Period: march,
			Due: decimal.RequireFromString("100"), Paid: decimal.Zero, CreatedAt: testNow, UpdatedAt: testNow,
		},
	}))
	err := store.ApplyDues(ctx, contribution.DuesPosting{
		Contribution: contribution.Contribution{
			ID: "c-dup", AssociationID: "assoc-1", MemberID: "mem-1", Period: march,
			Due: decimal.RequireFromString("100"), CreatedAt: testNow, UpdatedAt: testNow,
		},
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, store.CreateImport(ctx, banking.Import{ID: "imp-1", AssociationID: "assoc-1", Filename: "march.csv", Profile: "rabobank", CreatedAt: testNow}))
	tx := banking.Transaction{
		ID: "tx-1", AssociationID: "assoc-1", ImportID: "imp-1", ExternalID: "ref-1", BookingDate: testNow,
		Amount: decimal.RequireFromString("130"), Currency: "EUR", Description: "bijdrage maart",
		CounterpartyIBAN: "NL02RABO0123456789", Status: banking.StatusUnmatched, Credited: decimal.Zero,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, store.InsertTransaction(ctx, tx))
	dup := tx
	dup.ID = "tx-dup"
	assert.ErrorIs(t, store.InsertTransaction(ctx, dup), apperrors.ErrConflict)

	matched := tx
	matched.Status = banking.StatusMatched
	matched.MemberID = "mem-1"
	matched.EntryID = "entry-pay"
	matched.Credited = decimal.RequireFromString("30")
	require.NoError(t, store.ApplyPayment(ctx, banking.PaymentApplication{
		Transaction: matched,
		Allocations: []banking.PaymentAllocation{{TransactionID: "tx-1", MemberID: "mem-1", Period: march, Amount: decimal.RequireFromString("100")}},
		Entry: ledger.Entry{
			ID: "entry-pay", AssociationID: "assoc-1", Date: testNow, Description: "payment", Source: ledger.SourceBank, SourceRef: "tx-1",
			Lines: []ledger.Line{
				{AccountCode: "1100", Debit: decimal.RequireFromString("130")},
				{AccountCode: "1300", Credit: decimal.RequireFromString("100")},
				{AccountCode: "1700", Credit: decimal.RequireFromString("30")},
			},
			CreatedAt: testNow,
		},
	}))

	paid, err := store.GetContribution(ctx, "assoc-1", "mem-1", march)
	require.NoError(t, err)
	assert.True(t, paid.Paid.Equal(decimal.RequireFromString("100")))
	credit, err := store.GetCredit(ctx, "assoc-1", "mem-1")
	require.NoError(t, err)
	assert.True(t, credit.Balance.Equal(decimal.RequireFromString("30")))

	// A second match of the same transaction loses the status race.
	assert.ErrorIs(t, store.ApplyPayment(ctx, banking.PaymentApplication{Transaction: matched}), apperrors.ErrConflict)

	reset := tx
	reset.UpdatedAt = testNow.Add(time.Hour)
	overdrawn := banking.UndoApplication{
		Transaction:    reset,
		PreviousStatus: banking.StatusMatched,
		MemberID:       "mem-1",
		CreditReversal: decimal.RequireFromString("40"),
	}
	assert.ErrorIs(t, store.ApplyUndo(ctx, overdrawn), banking.ErrCreditSpent)
	stillMatched, err := store.GetTransaction(ctx, "assoc-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, banking.StatusMatched, stillMatched.Status)

	require.NoError(t, store.ApplyUndo(ctx, banking.UndoApplication{
		Transaction:    reset,
		PreviousStatus: banking.StatusMatched,
		MemberID:       "mem-1",
		CreditReversal: decimal.RequireFromString("30"),
		Reversal: &ledger.Entry{
			ID: "entry-undo", AssociationID: "assoc-1", Date: testNow, Description: "undo", Source: ledger.SourceReversal, ReversalOf: "entry-pay",
			Lines: []ledger.Line{
				{AccountCode: "1300", Debit: decimal.RequireFromString("100")},
				{AccountCode: "1700", Debit: decimal.RequireFromString("30")},
				{AccountCode: "1100", Credit: decimal.RequireFromString("130")},
			},
			CreatedAt: testNow,
		},
	}))

	paid, err = store.GetContribution(ctx, "assoc-1", "mem-1", march)
	require.NoError(t, err)
	assert.True(t, paid.Paid.IsZero())
	credit, err = store.GetCredit(ctx, "assoc-1", "mem-1")
	require.NoError(t, err)
	assert.True(t, credit.Balance.IsZero())
	allocations, err := store.ListAllocations(ctx, "assoc-1", "tx-1")
	require.NoError(t, err)
	assert.Empty(t, allocations)

	outstanding, err := store.ListOutstandingContributions(ctx, "assoc-1")
	require.NoError(t, err)
	assert.Len(t, outstanding, 1)

	unmatched, err := store.ListTransactions(ctx, "assoc-1", banking.TransactionFilter{Status: banking.StatusUnmatched, Limit: 10})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "tx-1", unmatched[0].ID)

	earlier := tx
	earlier.ID = "tx-0"
	earlier.ExternalID = "ref-0"
	earlier.BookingDate = testNow.AddDate(0, 0, -3)
	require.NoError(t, store.InsertTransaction(ctx, earlier))
	listed, err := store.ListTransactions(ctx, "assoc-1", banking.TransactionFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "tx-0", listed[0].ID, "oldest booking first")
	assert.Equal(t, "tx-1", listed[1].ID)
}

func TestScriptsAndRules(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	script, err := store.GetScript(ctx, "assoc-1")
	require.NoError(t, err)
	assert.Empty(t, script)

	require.NoError(t, store.PutScript(ctx, "assoc-1", `function categorize(tx) return nil end`))
	script, err = store.GetScript(ctx, "assoc-1")
	require.NoError(t, err)
	assert.Contains(t, script, "categorize")

	require.NoError(t, store.PutScript(ctx, "assoc-1", ""))
	script, err = store.GetScript(ctx, "assoc-1")
	require.NoError(t, err)
	assert.Empty(t, script)

	require.NoError(t, store.PutRule(ctx, banking.Rule{ID: "rule-1", AssociationID: "assoc-1", Name: "energy", Keywords: []string{"vattenfall", "eneco"}, AccountCode: "4200"}))
	rules, err := store.ListRules(ctx, "assoc-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"vattenfall", "eneco"}, rules[0].Keywords)

	require.NoError(t, store.DeleteRule(ctx, "assoc-1", "rule-1"))
	assert.ErrorIs(t, store.DeleteRule(ctx, "assoc-1", "rule-1"), apperrors.ErrNotFound)
}

func TestProposalResultRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	proposal := voting.Proposal{
		ID: "prop-1", AssociationID: "assoc-1", Title: "Paint the hallway", Method: voting.MethodByShare,
		QuorumPercent: 50, Majority: voting.MajoritySimple, Status: voting.StatusOpen, OpensAt: testNow,
		CreatedBy: "user-1", CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, store.PutProposal(ctx, proposal))
	require.NoError(t, store.PutVote(ctx, voting.Vote{ProposalID: "prop-1", MemberID: "mem-1", Choice: voting.ChoiceNo, Weight: decimal.RequireFromString("0.333333"), CastAt: testNow}))
	require.NoError(t, store.PutVote(ctx, voting.Vote{ProposalID: "prop-1", MemberID: "mem-1", Choice: voting.ChoiceYes, Weight: decimal.RequireFromString("0.333333"), CastAt: testNow.Add(time.Minute)}))

	votes, err := store.ListVotes(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, voting.ChoiceYes, votes[0].Choice)
	assert.Equal(t, "0.333333", votes[0].Weight.String())

	proposal.Status = voting.StatusClosed
	proposal.Outcome = voting.OutcomeNoQuorum
	proposal.ClosesAt = testNow.Add(time.Hour)
	proposal.Result = &voting.Tally{
		EligibleWeight: decimal.NewFromInt(1),
		CastWeight:     decimal.RequireFromString("0.333333"),
		Yes:            decimal.RequireFromString("0.333333"),
		Turnout:        decimal.RequireFromString("0.333333"),
	}
	require.NoError(t, store.PutProposal(ctx, proposal))

	got, err := store.GetProposal(ctx, "assoc-1", "prop-1")
	require.NoError(t, err)
	assert.Equal(t, voting.OutcomeNoQuorum, got.Outcome)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Yes.Equal(decimal.RequireFromString("0.333333")))
	assert.False(t, got.Result.QuorumReached)
	assert.True(t, got.ClosesAt.Equal(testNow.Add(time.Hour)))
}

func TestInvitesAllowOnePendingPerEmail(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	pending := invite.Invite{
		ID: "inv-1", AssociationID: "assoc-1", Email: "dirk@example.com", Role: association.RoleMember, Locale: "nl",
		TokenHash: "hash-1", Status: invite.StatusPending, InvitedBy: "user-1", ExpiresAt: testNow.Add(invite.DefaultTTL),
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, store.PutInvite(ctx, pending))

	second := pending
	second.ID = "inv-2"
	second.TokenHash = "hash-2"
	assert.ErrorIs(t, store.PutInvite(ctx, second), apperrors.ErrConflict)

	found, err := store.FindPendingInvite(ctx, "assoc-1", "dirk@example.com")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", found.ID)

	acceptedAt := testNow.Add(time.Hour)
	found.Status = invite.StatusAccepted
	found.AcceptedAt = &acceptedAt
	found.AcceptedUserID = "user-9"
	require.NoError(t, store.PutInvite(ctx, found))

	_, err = store.FindPendingInvite(ctx, "assoc-1", "dirk@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, store.PutInvite(ctx, second))

	byHash, err := store.GetInviteByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, byHash.AcceptedAt)
	assert.True(t, byHash.AcceptedAt.Equal(acceptedAt))

	all, err := store.ListInvites(ctx, "assoc-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSwapInviteRequiresUnchangedRow(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAssociation(t, store)
	ctx := context.Background()

	pending := invite.Invite{
		ID: "inv-1", AssociationID: "assoc-1", Email: "dirk@example.com", Role: association.RoleMember, Locale: "nl",
		TokenHash: "hash-1", Status: invite.StatusPending, InvitedBy: "user-1", ExpiresAt: testNow.Add(invite.DefaultTTL),
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, store.PutInvite(ctx, pending))

	rotated := pending
	rotated.TokenHash = "hash-2"
	require.NoError(t, store.SwapInvite(ctx, pending, rotated))

	acceptedAt := testNow.Add(time.Hour)
	accepted := pending
	accepted.Status = invite.StatusAccepted
	accepted.AcceptedAt = &acceptedAt
	accepted.AcceptedUserID = "user-9"
	assert.ErrorIs(t, store.SwapInvite(ctx, pending, accepted), apperrors.ErrConflict, "stale token hash")

	revoked := rotated
	revoked.Status = invite.StatusRevoked
	require.NoError(t, store.SwapInvite(ctx, rotated, revoked))
	assert.ErrorIs(t, store.SwapInvite(ctx, rotated, revoked), apperrors.ErrConflict, "stale status")

	stored, err := store.GetInvite(ctx, "assoc-1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invite.StatusRevoked, stored.Status)
	assert.Equal(t, "hash-2", stored.TokenHash)
	assert.Nil(t, stored.AcceptedAt)
}

func TestMailLeaseLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	for i, key := range []string{"k-1", "k-2"} {
		require.NoError(t, store.InsertMessage(ctx, mail.Message{
			ID: "msg-" + key, To: "anna@example.com", Subject: "Hallo", Body: "body", DedupeKey: key,
			Status: mail.StatusPending, NextAttemptAt: testNow.Add(time.Duration(i) * time.Minute),
			CreatedAt: testNow, UpdatedAt: testNow,
		}))
	}
	err := store.InsertMessage(ctx, mail.Message{ID: "msg-x", To: "x@example.com", DedupeKey: "k-1", Status: mail.StatusPending, NextAttemptAt: testNow, CreatedAt: testNow, UpdatedAt: testNow})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	leased, err := store.LeaseMessages(ctx, "worker-a", 10, testNow, testNow.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, leased, 1)
	assert.Equal(t, "msg-k-1", leased[0].ID)
	assert.Equal(t, 1, leased[0].Attempts)
	assert.Equal(t, mail.StatusSending, leased[0].Status)

	// Nothing new is due until the lease expires.
	again, err := store.LeaseMessages(ctx, "worker-b", 10, testNow.Add(30*time.Second), testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again)

	reclaimed, err := store.LeaseMessages(ctx, "worker-b", 10, testNow.Add(2*time.Minute), testNow.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, reclaimed, 2)
	assert.Equal(t, 2, reclaimed[0].Attempts)

	assert.ErrorIs(t, store.MarkMessageSent(ctx, "msg-k-1", "worker-a", testNow), apperrors.ErrConflict)
	require.NoError(t, store.MarkMessageSent(ctx, "msg-k-1", "worker-b", testNow.Add(2*time.Minute)))
	require.NoError(t, store.MarkMessageDead(ctx, "msg-k-2", "worker-b", "mailbox unavailable", testNow.Add(2*time.Minute)))

	sent, err := store.GetMessageByDedupeKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, mail.StatusSent, sent.Status)
	assert.Empty(t, sent.LeaseOwner)

	dead, err := store.ListMessages(ctx, mail.StatusDead, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "mailbox unavailable", dead[0].LastError)
}

func TestNotificationInboxPagination(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	for i, id := range []string{"n-1", "n-2", "n-3"} {
		at := testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.PutNotification(ctx, notifications.Notification{
			ID: id, RecipientUserID: "user-1", AssociationID: "assoc-1", Topic: "payment.received",
			PayloadJSON: `{}`, DedupeKey: "dedupe-" + id, Source: "banking", CreatedAt: at, UpdatedAt: at,
		}))
	}
	err := store.PutNotification(ctx, notifications.Notification{
		ID: "n-dup", RecipientUserID: "user-1", Topic: "payment.received", DedupeKey: "dedupe-n-1", CreatedAt: testNow, UpdatedAt: testNow,
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	page, err := store.ListNotifications(ctx, notifications.InboxQuery{RecipientUserID: "user-1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, "n-3", page.Notifications[0].ID)
	assert.Equal(t, "n-2", page.NextPageToken)

	next, err := store.ListNotifications(ctx, notifications.InboxQuery{RecipientUserID: "user-1", PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Notifications, 1)
	assert.Equal(t, "n-1", next.Notifications[0].ID)
	assert.Empty(t, next.NextPageToken)

	unknown, err := store.ListNotifications(ctx, notifications.InboxQuery{RecipientUserID: "user-1", PageSize: 2, PageToken: "missing"})
	require.NoError(t, err)
	assert.Empty(t, unknown.Notifications)

	read, err := store.MarkNotificationRead(ctx, "user-1", "n-2", testNow.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)
	reread, err := store.MarkNotificationRead(ctx, "user-1", "n-2", testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, reread.ReadAt.Equal(testNow.Add(time.Hour)))

	unread, err := store.CountUnreadNotifications(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	_, err = store.MarkNotificationRead(ctx, "user-2", "n-1", testNow)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = store.GetNotificationByRecipientAndDedupeKey(ctx, "user-1", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotificationInboxFilters(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	for i, assoc := range []string{"assoc-1", "assoc-2", "assoc-1"} {
		at := testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.PutNotification(ctx, notifications.Notification{
			ID: fmt.Sprintf("n-%d", i+1), RecipientUserID: "user-1", AssociationID: assoc, Topic: "dues.overdue",
			PayloadJSON: `{}`, CreatedAt: at, UpdatedAt: at,
		}))
	}
	_, err := store.MarkNotificationRead(ctx, "user-1", "n-3", testNow.Add(time.Hour))
	require.NoError(t, err)

	scoped, err := store.ListNotifications(ctx, notifications.InboxQuery{RecipientUserID: "user-1", AssociationID: "assoc-1", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, scoped.Notifications, 2)

	unread, err := store.ListNotifications(ctx, notifications.InboxQuery{RecipientUserID: "user-1", UnreadOnly: true, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, unread.Notifications, 2)
	assert.Equal(t, "n-2", unread.Notifications[0].ID)

	count, err := store.CountUnreadNotifications(ctx, "user-1", "assoc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	marked, err := store.MarkAllNotificationsRead(ctx, "user-1", "assoc-2", testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	marked, err = store.MarkAllNotificationsRead(ctx, "user-1", "", testNow.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	count, err = store.CountUnreadNotifications(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.ListNotifications(ctx, notifications.InboxQuery{PageSize: 10})
	assert.Error(t, err)
}
