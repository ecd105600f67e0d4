package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	notifications "github.com/louisbranch/vvebeheer/internal/services/notifications/domain"
	"github.com/louisbranch/vvebeheer/internal/services/notifications/render"
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

func amount(value decimal.Decimal) string {
	return money.FormatStored(value)
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	return &value
}

func dateString(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(time.DateOnly)
}

type userView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Locale      string    `json:"locale"`
	SuperAdmin  bool      `json:"super_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserView(u account.User) userView {
	return userView{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Locale: u.Locale, SuperAdmin: u.SuperAdmin, CreatedAt: u.CreatedAt}
}

type associationView struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Slug                 string    `json:"slug"`
	IBAN                 string    `json:"iban"`
	Currency             string    `json:"currency"`
	MonthlyFee           string    `json:"monthly_fee"`
	FiscalYearStartMonth int       `json:"fiscal_year_start_month"`
	Role                 string    `json:"role,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func toAssociationView(a association.Association) associationView {
	return associationView{
		ID:                   a.ID,
		Name:                 a.Name,
		Slug:                 a.Slug,
		IBAN:                 a.IBAN,
		Currency:             a.Currency,
		MonthlyFee:           amount(a.MonthlyFee),
		FiscalYearStartMonth: a.FiscalYearStartMonth,
		CreatedAt:            a.CreatedAt,
	}
}

type membershipView struct {
	AssociationID string    `json:"association_id"`
	UserID        string    `json:"user_id"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMembershipView(m association.Membership) membershipView {
	return membershipView{AssociationID: m.AssociationID, UserID: m.UserID, Role: string(m.Role), CreatedAt: m.CreatedAt}
}

type memberView struct {
	ID                 string   `json:"id"`
	UserID             string   `json:"user_id,omitempty"`
	Name               string   `json:"name"`
	Email              string   `json:"email,omitempty"`
	Phone              string   `json:"phone,omitempty"`
	Unit               string   `json:"unit"`
	Share              string   `json:"share"`
	IBANs              []string `json:"ibans"`
	MonthlyFeeOverride *string  `json:"monthly_fee_override,omitempty"`
	StartDate          string   `json:"start_date"`
	EndDate            string   `json:"end_date,omitempty"`
}

func toMemberView(m member.Member) memberView {
	view := memberView{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Unit:      m.Unit,
		Share:     m.Share.String(),
		IBANs:     m.IBANs,
		StartDate: dateString(m.StartDate),
	}
	if view.IBANs == nil {
		view.IBANs = []string{}
	}
	if m.MonthlyFeeOverride != nil {
		override := amount(*m.MonthlyFeeOverride)
		view.MonthlyFeeOverride = &override
	}
	if m.EndDate != nil {
		view.EndDate = dateString(*m.EndDate)
	}
	return view
}

type contributionView struct {
	MemberID    string `json:"member_id"`
	Period      string `json:"period"`
	Due         string `json:"due"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`
	Status      string `json:"status"`
}

func toContributionView(c contribution.Contribution) contributionView {
	return contributionView{
		MemberID:    c.MemberID,
		Period:      c.Period.String(),
		Due:         amount(c.Due),
		Paid:        amount(c.Paid),
		Outstanding: amount(c.Outstanding()),
		Status:      string(c.Status()),
	}
}

func toContributionViews(items []contribution.Contribution) []contributionView {
	views := make([]contributionView, 0, len(items))
	for _, c := range items {
		views = append(views, toContributionView(c))
	}
	return views
}

type summaryView struct {
	MemberID    string `json:"member_id"`
	MemberName  string `json:"member_name"`
	Unit        string `json:"unit"`
	Due         string `json:"due"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`
	Credit      string `json:"credit"`
}

type transactionView struct {
	ID               string `json:"id"`
	ImportID         string `json:"import_id,omitempty"`
	ExternalID       string `json:"external_id,omitempty"`
	BookingDate      string `json:"booking_date"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Description      string `json:"description"`
	CounterpartyName string `json:"counterparty_name,omitempty"`
	CounterpartyIBAN string `json:"counterparty_iban,omitempty"`
	Status           string `json:"status"`
	MemberID         string `json:"member_id,omitempty"`
	AccountCode      string `json:"account_code,omitempty"`
	EntryID          string `json:"entry_id,omitempty"`
	Credited         string `json:"credited"`
	Note             string `json:"note,omitempty"`
}

func toTransactionView(tx banking.Transaction) transactionView {
	return transactionView{
		ID:               tx.ID,
		ImportID:         tx.ImportID,
		ExternalID:       tx.ExternalID,
		BookingDate:      dateString(tx.BookingDate),
		Amount:           amount(tx.Amount),
		Currency:         tx.Currency,
		Description:      tx.Description,
		CounterpartyName: tx.CounterpartyName,
		CounterpartyIBAN: tx.CounterpartyIBAN,
		Status:           string(tx.Status),
		MemberID:         tx.MemberID,
		AccountCode:      tx.AccountCode,
		EntryID:          tx.EntryID,
		Credited:         amount(tx.Credited),
		Note:             tx.Note,
	}
}

type allocationView struct {
	MemberID string `json:"member_id"`
	Period   string `json:"period"`
	Amount   string `json:"amount"`
}

func toAllocationViews(items []banking.PaymentAllocation) []allocationView {
	views := make([]allocationView, 0, len(items))
	for _, a := range items {
		views = append(views, allocationView{MemberID: a.MemberID, Period: a.Period.String(), Amount: amount(a.Amount)})
	}
	return views
}

type importView struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Profile    string    `json:"profile"`
	Total      int       `json:"total"`
	Imported   int       `json:"imported"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type rowErrorView struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type importResultView struct {
	ImportID   string         `json:"import_id"`
	Total      int            `json:"total"`
	Imported   int            `json:"imported"`
	Duplicates int            `json:"duplicates"`
	Failed     []rowErrorView `json:"failed"`
}

func toImportResultView(result banking.ImportResult) importResultView {
	view := importResultView{
		ImportID:   result.ImportID,
		Total:      result.Total,
		Imported:   result.Imported,
		Duplicates: result.Duplicates,
		Failed:     make([]rowErrorView, 0, len(result.Failed)),
	}
	for _, rowErr := range result.Failed {
		view.Failed = append(view.Failed, rowErrorView{Line: rowErr.Line, Message: rowErr.Message})
	}
	return view
}

type reportView struct {
	Matched      int    `json:"matched"`
	Categorized  int    `json:"categorized"`
	Unmatched    int    `json:"unmatched"`
	Failed       int    `json:"failed"`
	Allocations  int    `json:"allocations"`
	Overpayments string `json:"overpayments"`
}

type ruleView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Priority         int      `json:"priority"`
	Keywords         []string `json:"keywords"`
	Direction        string   `json:"direction"`
	CounterpartyIBAN string   `json:"counterparty_iban,omitempty"`
	AccountCode      string   `json:"account_code"`
}

func toRuleView(rule banking.Rule) ruleView {
	return ruleView{
		ID:               rule.ID,
		Name:             rule.Name,
		Priority:         rule.Priority,
		Keywords:         rule.Keywords,
		Direction:        string(rule.Direction),
		CounterpartyIBAN: rule.CounterpartyIBAN,
		AccountCode:      rule.AccountCode,
	}
}

type accountView struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	System bool   `json:"system"`
}

func toAccountView(a ledger.Account) accountView {
	return accountView{Code: a.Code, Name: a.Name, Type: string(a.Type), System: a.System}
}

type lineView struct {
	AccountCode string `json:"account_code"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Memo        string `json:"memo,omitempty"`
}

type entryView struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Source      string     `json:"source"`
	SourceRef   string     `json:"source_ref,omitempty"`
	ReversalOf  string     `json:"reversal_of,omitempty"`
	Lines       []lineView `json:"lines"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toEntryView(e ledger.Entry) entryView {
	view := entryView{
		ID:          e.ID,
		Date:        dateString(e.Date),
		Description: e.Description,
		Source:      string(e.Source),
		SourceRef:   e.SourceRef,
		ReversalOf:  e.ReversalOf,
		Lines:       make([]lineView, 0, len(e.Lines)),
		CreatedAt:   e.CreatedAt,
	}
	for _, line := range e.Lines {
		view.Lines = append(view.Lines, lineView{AccountCode: line.AccountCode, Debit: amount(line.Debit), Credit: amount(line.Credit), Memo: line.Memo})
	}
	return view
}

type balanceRowView struct {
	Account accountView `json:"account"`
	Debit   string      `json:"debit"`
	Credit  string      `json:"credit"`
	Balance string      `json:"balance"`
}

func toBalanceRows(rows []ledger.BalanceRow) []balanceRowView {
	views := make([]balanceRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, balanceRowView{
			Account: toAccountView(row.Account),
			Debit:   amount(row.Debit),
			Credit:  amount(row.Credit),
			Balance: amount(row.Balance),
		})
	}
	return views
}

type tallyView struct {
	EligibleWeight string `json:"eligible_weight"`
	CastWeight     string `json:"cast_weight"`
	Yes            string `json:"yes"`
	No             string `json:"no"`
	Abstain        string `json:"abstain"`
	Turnout        string `json:"turnout"`
	QuorumReached  bool   `json:"quorum_reached"`
	YesShare       string `json:"yes_share"`
	Passed         bool   `json:"passed"`
}

func toTallyView(t voting.Tally) tallyView {
	return tallyView{
		EligibleWeight: t.EligibleWeight.String(),
		CastWeight:     t.CastWeight.String(),
		Yes:            t.Yes.String(),
		No:             t.No.String(),
		Abstain:        t.Abstain.String(),
		Turnout:        t.Turnout.String(),
		QuorumReached:  t.QuorumReached,
		YesShare:       t.YesShare.String(),
		Passed:         t.Passed,
	}
}

type proposalView struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Method        string     `json:"method"`
	QuorumPercent int        `json:"quorum_percent"`
	Majority      string     `json:"majority"`
	OpensAt       *time.Time `json:"opens_at,omitempty"`
	ClosesAt      *time.Time `json:"closes_at,omitempty"`
	Status        string     `json:"status"`
	Outcome       string     `json:"outcome,omitempty"`
	Result        *tallyView `json:"result,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toProposalView(p voting.Proposal) proposalView {
	view := proposalView{
		ID:            p.ID,
		Title:         p.Title,
		Body:          p.Body,
		Method:        string(p.Method),
		QuorumPercent: p.QuorumPercent,
		Majority:      string(p.Majority),
		OpensAt:       optionalTime(p.OpensAt),
		ClosesAt:      optionalTime(p.ClosesAt),
		Status:        string(p.Status),
		Outcome:       string(p.Outcome),
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
	}
	if p.Result != nil {
		result := toTallyView(*p.Result)
		view.Result = &result
	}
	return view
}

type voteView struct {
	MemberID string    `json:"member_id"`
	Choice   string    `json:"choice"`
	Weight   string    `json:"weight"`
	CastAt   time.Time `json:"cast_at"`
}

func toVoteView(v voting.Vote) voteView {
	return voteView{MemberID: v.MemberID, Choice: string(v.Choice), Weight: v.Weight.String(), CastAt: v.CastAt}
}

type inviteView struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Locale     string     `json:"locale"`
	Status     string     `json:"status"`
	InvitedBy  string     `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toInviteView(inv invite.Invite) inviteView {
	return inviteView{
		ID:         inv.ID,
		Email:      inv.Email,
		Role:       string(inv.Role),
		Locale:     inv.Locale,
		Status:     string(inv.Status),
		InvitedBy:  inv.InvitedBy,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
		CreatedAt:  inv.CreatedAt,
	}
}

type notificationView struct {
	ID            string     `json:"id"`
	AssociationID string     `json:"association_id,omitempty"`
	Topic         string     `json:"topic"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Source        string     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

// toNotificationView renders the inbox copy in the caller's locale.
func toNotificationView(n notifications.Notification, locale string) notificationView {
	out := render.Render(render.Printer(locale), render.Input{
		Topic:       n.Topic,
		PayloadJSON: n.PayloadJSON,
		Channel:     render.ChannelInApp,
	})
	return notificationView{
		ID:            n.ID,
		AssociationID: n.AssociationID,
		Topic:         n.Topic,
		Title:         out.Title,
		Body:          out.BodyText,
		Source:        n.Source,
		CreatedAt:     n.CreatedAt,
		ReadAt:        n.ReadAt,
	}
}

type mailView struct {
	ID            string     `json:"id"`
	To            string     `json:"to"`
	Subject       string     `json:"subject"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     string     `json:"last_error,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toMailView(m mail.Message) mailView {
	return mailView{
		ID:            m.ID,
		To:            m.To,
		Subject:       m.Subject,
		Status:        string(m.Status),
		Attempts:      m.Attempts,
		NextAttemptAt: m.NextAttemptAt,
		LastError:     m.LastError,
		SentAt:        optionalTime(m.SentAt),
		CreatedAt:     m.CreatedAt,
	}
}
