package vvectl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	vveapp "github.com/louisbranch/vvebeheer/internal/services/vve/app"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/contribution"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/invite"
	workerdomain "github.com/louisbranch/vvebeheer/internal/services/worker/domain"
)

const dateLayout = "2006-01-02"

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Short:   "Create or upgrade the database schema",
		GroupID: "setup",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(_ context.Context, s *session, p printer) error {
				return p.record(Record{
					{"Database", s.settings.DBPath},
					{"Status", "up to date"},
				})
			})
		},
	}
}

func newBootstrapCommand(opts *options) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:     "bootstrap",
		Short:   "Create the super admin or promote an existing user",
		GroupID: "setup",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = opts.viper.GetString(keyAdminPassword)
			}
			if email == "" {
				email = opts.settings().Operator
			}
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				user, created, err := s.app.Services.Accounts.BootstrapSuperAdmin(ctx, email, name, password)
				if err != nil {
					return err
				}
				return p.record(Record{
					{"ID", user.ID},
					{"Email", user.Email},
					{"Created", strconv.FormatBool(created)},
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Super admin email (defaults to the operator)")
	cmd.Flags().StringVar(&name, "name", "Beheerder", "Display name for a new account")
	cmd.Flags().StringVar(&password, "password", "", "Password for a new account (or VVEBEHEER_ADMIN_PASSWORD)")
	return cmd
}

func newAssociationCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "association",
		Aliases: []string{"assoc"},
		Short:   "Manage associations",
		GroupID: "setup",
	}

	var input association.CreateInput
	var fee, admin string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an association with its chart of accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				ctx, operator, err := s.operator(ctx)
				if err != nil {
					return err
				}
				if fee != "" {
					amount, err := money.Parse(fee)
					if err != nil {
						return err
					}
					input.MonthlyFee = amount
				}
				input.AdminUserID = operator.ID
				if admin != "" {
					user, err := s.app.Services.Accounts.FindByEmail(ctx, admin)
					if err != nil {
						return fmt.Errorf("admin %q: %w", admin, err)
					}
					input.AdminUserID = user.ID
				}
				created, err := s.app.Services.Associations.Create(ctx, input)
				if err != nil {
					return err
				}
				return p.record(associationRecord(created))
			})
		},
	}
	create.Flags().StringVar(&input.Name, "name", "", "Association name")
	create.Flags().StringVar(&input.Slug, "slug", "", "URL slug (derived from the name when empty)")
	create.Flags().StringVar(&input.IBAN, "iban", "", "Association bank account")
	create.Flags().StringVar(&fee, "fee", "", "Default monthly fee, e.g. 125,00")
	create.Flags().IntVar(&input.FiscalYearStartMonth, "fiscal-start", 1, "First month of the fiscal year")
	create.Flags().StringVar(&admin, "admin", "", "Email of an existing user to make admin (defaults to the operator)")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List associations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				all, err := s.app.Services.Associations.All(ctx)
				if err != nil {
					return err
				}
				table := Table{Headers: []string{"ID", "Slug", "Name", "IBAN", "Monthly Fee"}}
				for _, assoc := range all {
					table.Rows = append(table.Rows, []string{assoc.ID, assoc.Slug, assoc.Name, assoc.IBAN, amount(assoc.MonthlyFee)})
				}
				return p.table(table)
			})
		},
	}
	cmd.AddCommand(create, list)
	return cmd
}

func associationRecord(assoc association.Association) Record {
	return Record{
		{"ID", assoc.ID},
		{"Slug", assoc.Slug},
		{"Name", assoc.Name},
		{"IBAN", assoc.IBAN},
		{"Monthly Fee", amount(assoc.MonthlyFee)},
		{"Fiscal Start", strconv.Itoa(assoc.FiscalYearStartMonth)},
	}
}

func newInviteCommand(opts *options) *cobra.Command {
	var role, locale string
	cmd := &cobra.Command{
		Use:     "invite <association> <email>",
		Short:   "Invite someone to an association and queue the invite mail",
		GroupID: "setup",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRole, err := association.ParseRole(role)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				ctx, _, err := s.operator(ctx)
				if err != nil {
					return err
				}
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				created, err := s.app.Services.Invites.Create(ctx, assoc.ID, invite.CreateInput{Email: args[1], Role: parsedRole, Locale: locale})
				if err != nil {
					return err
				}
				return p.record(Record{
					{"ID", created.Invite.ID},
					{"Email", created.Invite.Email},
					{"Role", string(created.Invite.Role)},
					{"Expires", created.Invite.ExpiresAt.UTC().Format(time.RFC3339)},
					{"Accept URL", vveapp.AcceptLink(s.settings.InviteURL, created.Token)},
				})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(association.RoleMember), "Role granted on acceptance: member, board or admin")
	cmd.Flags().StringVar(&locale, "locale", "", "Invite mail language (nl or en)")
	return cmd
}

func newImportCommand(opts *options) *cobra.Command {
	var profile string
	var reconcile bool
	cmd := &cobra.Command{
		Use:     "import <association> <statement.csv>",
		Short:   "Import a bank statement",
		Long:    "Import a CSV bank statement. The profile defaults to the name suffix\nof <name>.<profile>.csv, or generic.",
		GroupID: "books",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[1]
			if profile == "" {
				profile = workerdomain.ProfileFromName(filepath.Base(path))
			}
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				file, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open statement: %w", err)
				}
				defer file.Close()
				result, err := s.app.Services.Banking.ImportSystem(ctx, assoc.ID, profile, filepath.Base(path), file, s.actor(ctx))
				if err != nil {
					return err
				}
				record := Record{
					{"Import", result.ImportID},
					{"Profile", profile},
					{"Total", strconv.Itoa(result.Total)},
					{"Imported", strconv.Itoa(result.Imported)},
					{"Duplicates", strconv.Itoa(result.Duplicates)},
					{"Failed", strconv.Itoa(len(result.Failed))},
				}
				for _, failure := range result.Failed {
					record = append(record, Field{fmt.Sprintf("Line %d", failure.Line), failure.Message})
				}
				if reconcile && result.Imported > 0 {
					report, err := s.app.Services.Banking.ReconcilePendingSystem(ctx, assoc.ID)
					if err != nil {
						return err
					}
					record = append(record, reconcileRecord(report)...)
				}
				return p.record(record)
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Import profile name")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "Reconcile pending transactions after the import")
	return cmd
}

func newReconcileCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "reconcile <association>",
		Short:   "Match pending transactions to members and categorize the rest",
		GroupID: "books",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				report, err := s.app.Services.Banking.ReconcilePendingSystem(ctx, assoc.ID)
				if err != nil {
					return err
				}
				record := reconcileRecord(report)
				record = append(record, Field{"Allocations", strconv.Itoa(report.Allocations)})
				return p.record(record)
			})
		},
	}
}

func reconcileRecord(report banking.ReconcileReport) Record {
	return Record{
		{"Matched", strconv.Itoa(report.Matched)},
		{"Categorized", strconv.Itoa(report.Categorized)},
		{"Unmatched", strconv.Itoa(report.Unmatched)},
		{"Failed", strconv.Itoa(report.Failed)},
		{"Overpayments", amount(report.Overpayments)},
	}
}

func newDuesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dues",
		Short:   "Generate and inspect monthly dues",
		GroupID: "books",
	}

	var period string
	generate := &cobra.Command{
		Use:   "generate <association>",
		Short: "Generate dues for one month (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := contribution.PeriodOf(time.Now().UTC())
			if period != "" {
				parsed, err := contribution.ParsePeriod(period)
				if err != nil {
					return err
				}
				target = parsed
			}
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				result, err := s.app.Services.Contributions.GenerateDuesSystem(ctx, assoc.ID, target)
				if err != nil {
					return err
				}
				return p.record(Record{
					{"Period", result.Period.String()},
					{"Created", strconv.Itoa(result.Created)},
					{"Skipped", strconv.Itoa(result.Skipped)},
					{"Credit Applied", amount(result.CreditApplied)},
				})
			})
		},
	}
	generate.Flags().StringVar(&period, "period", "", "Month as YYYY-MM (defaults to the current month)")

	var graceDays int
	overdue := &cobra.Command{
		Use:   "overdue <association>",
		Short: "List members with dues outstanding past the grace period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				members, err := s.app.Services.Contributions.OverdueMembers(ctx, assoc.ID, time.Now().UTC(), graceDays)
				if err != nil {
					return err
				}
				table := Table{Headers: []string{"Member", "Name", "Outstanding", "Periods"}}
				for _, m := range members {
					periods := make([]string, 0, len(m.Periods))
					for _, period := range m.Periods {
						periods = append(periods, period.String())
					}
					table.Rows = append(table.Rows, []string{m.MemberID, m.MemberName, amount(m.Outstanding), strings.Join(periods, ", ")})
				}
				return p.table(table)
			})
		},
	}
	overdue.Flags().IntVar(&graceDays, "grace-days", 14, "Days past the end of a period before it counts as overdue")

	cmd.AddCommand(generate, overdue)
	return cmd
}

func newReportsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Short:   "Print financial reports",
		GroupID: "books",
	}

	var from, to string
	trial := &cobra.Command{
		Use:   "trial-balance <association>",
		Short: "Debit and credit totals per account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseDate(from)
			if err != nil {
				return err
			}
			toDate, err := parseDate(to)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				ctx, _, err := s.operator(ctx)
				if err != nil {
					return err
				}
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				report, err := s.app.Services.Ledger.TrialBalance(ctx, assoc.ID, fromDate, toDate)
				if err != nil {
					return err
				}
				table := Table{Headers: []string{"Code", "Account", "Debit", "Credit", "Balance"}}
				for _, row := range report.Rows {
					table.Rows = append(table.Rows, []string{row.Account.Code, row.Account.Name, amount(row.Debit), amount(row.Credit), amount(row.Balance)})
				}
				table.Rows = append(table.Rows, []string{"", "Total", amount(report.TotalDebit), amount(report.TotalCredit), ""})
				return p.table(table)
			})
		},
	}
	trial.Flags().StringVar(&from, "from", "", "First day as YYYY-MM-DD")
	trial.Flags().StringVar(&to, "to", "", "Last day as YYYY-MM-DD")

	var year int
	income := &cobra.Command{
		Use:   "income <association>",
		Short: "Income and expenses for one year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				ctx, _, err := s.operator(ctx)
				if err != nil {
					return err
				}
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				report, err := s.app.Services.Ledger.IncomeStatement(ctx, assoc.ID, year)
				if err != nil {
					return err
				}
				table := Table{Headers: []string{"Kind", "Code", "Account", "Amount"}}
				for _, row := range report.Income {
					table.Rows = append(table.Rows, []string{"income", row.Account.Code, row.Account.Name, amount(row.Balance)})
				}
				for _, row := range report.Expenses {
					table.Rows = append(table.Rows, []string{"expense", row.Account.Code, row.Account.Name, amount(row.Balance)})
				}
				table.Rows = append(table.Rows, []string{"result", "", strconv.Itoa(report.Year), amount(report.Result)})
				return p.table(table)
			})
		},
	}
	income.Flags().IntVar(&year, "year", time.Now().UTC().Year(), "Calendar year")

	var duesYear int
	dues := &cobra.Command{
		Use:   "dues <association>",
		Short: "Dues, payments and arrears per member for one year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				assoc, err := s.association(ctx, args[0])
				if err != nil {
					return err
				}
				summary, err := s.app.Services.Contributions.SummarySystem(ctx, assoc.ID, duesYear)
				if err != nil {
					return err
				}
				table := Table{Headers: []string{"Member", "Name", "Unit", "Due", "Paid", "Outstanding", "Credit"}}
				for _, row := range summary {
					table.Rows = append(table.Rows, []string{row.MemberID, row.MemberName, row.Unit, amount(row.Due), amount(row.Paid), amount(row.Outstanding), amount(row.Credit)})
				}
				return p.table(table)
			})
		},
	}
	dues.Flags().IntVar(&duesYear, "year", time.Now().UTC().Year(), "Calendar year")

	cmd.AddCommand(trial, income, dues)
	return cmd
}

func newJobsCommand(opts *options) *cobra.Command {
	var job string
	var limit int
	cmd := &cobra.Command{
		Use:     "jobs",
		Short:   "Show recent worker job runs",
		GroupID: "books",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be positive")
			}
			return opts.run(cmd, func(ctx context.Context, s *session, p printer) error {
				runs, err := s.app.Store.ListJobRuns(ctx, strings.TrimSpace(job), limit)
				if err != nil {
					return err
				}
				table := Table{Headers: []string{"Started", "Job", "Worker", "Outcome", "Processed", "Failed", "Detail", "Error"}}
				for _, run := range runs {
					table.Rows = append(table.Rows, []string{
						run.StartedAt.UTC().Format(time.RFC3339),
						run.Job,
						run.Worker,
						run.Outcome,
						strconv.Itoa(run.Processed),
						strconv.Itoa(run.Failed),
						run.Detail,
						run.LastError,
					})
				}
				return p.table(table)
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Only show runs of this job")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	return cmd
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", raw)
	}
	return parsed, nil
}

func amount(value decimal.Decimal) string {
	return value.StringFixed(2)
}
