package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"storefront-wallet/internal/audit"
	"storefront-wallet/internal/bootstrap"
	"storefront-wallet/internal/reconcile"
	"storefront-wallet/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// operatorActor attributes walletctl changes in the audit log.
var operatorActor = audit.Actor{UserID: "walletctl", Role: "admin"}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletShowCmd)
	walletCmd.AddCommand(walletTransactionsCmd)
	walletCmd.AddCommand(walletVerifyCmd)
	walletCmd.AddCommand(walletRoleCmd)
	walletCmd.AddCommand(walletCreditCmd)
	walletCmd.AddCommand(walletDebitCmd)

	walletTransactionsCmd.Flags().IntP("limit", "n", 20, "Number of transactions to show")
	for _, c := range []*cobra.Command{walletCreditCmd, walletDebitCmd} {
		c.Flags().StringP("kind", "k", "", "Wallet kind (loyalty_coins, affiliate_earnings, instagram_rewards, refund_credits, promotional_credits)")
		c.Flags().StringP("amount", "a", "", "Amount in the kind's native unit")
		c.Flags().String("source", wallet.SourceAdminAdjustment, "Transaction source")
		c.Flags().String("ref", "", "Reference id; makes a credit idempotent")
		c.Flags().String("note", "", "Description stored on the transaction")
		_ = c.MarkFlagRequired("kind")
		_ = c.MarkFlagRequired("amount")
	}
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect and adjust a user's wallet",
}

var walletShowCmd = &cobra.Command{
	Use:   "show USER_ID",
	Short: "Show balances, role and spendable total",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		w, err := deps.Wallet.GetWallet(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		b := deps.Wallet.Breakdown(w)
		return printResult(cmd, b, func(out io.Writer) { writeBreakdown(out, w, b) })
	},
}

func writeBreakdown(out io.Writer, w wallet.Wallet, b wallet.Breakdown) {
	fmt.Fprintf(out, "user:            %s\n", w.UserID)
	fmt.Fprintf(out, "marketing role:  %s\n", w.MarketingRole)
	if w.RoleLockedAt != nil {
		fmt.Fprintf(out, "role locked at:  %s\n", w.RoleLockedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tAMOUNT\tVALUE\tSPENDABLE")
	for _, l := range b.Lines {
		state := "no"
		switch {
		case l.Spendable:
			state = "yes"
		case l.Stranded:
			state = "stranded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Kind, l.Amount.StringFixed(l.Kind.Scale()), l.Value.StringFixed(2), state)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\nspendable total: %s\n", b.SpendableTotal.StringFixed(2))
}

var walletTransactionsCmd = &cobra.Command{
	Use:   "transactions USER_ID",
	Short: "List the newest journal entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		deps, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		txs, err := deps.Wallet.Transactions(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		return printResult(cmd, txs, func(out io.Writer) { writeTransactions(out, txs) })
	},
}

func writeTransactions(out io.Writer, txs []wallet.Transaction) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tKIND\tDIRECTION\tAMOUNT\tBALANCE\tSOURCE\tREFERENCE")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Kind, tx.Direction,
			tx.Amount, tx.BalanceAfter, tx.Source, tx.ReferenceID)
	}
	_ = tw.Flush()
}

var walletVerifyCmd = &cobra.Command{
	Use:   "verify USER_ID",
	Short: "Replay the journal and compare it with stored balances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		r, err := deps.Reconcile.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := printResult(cmd, r, func(out io.Writer) { writeReport(out, r) }); err != nil {
			return err
		}
		if !r.Consistent {
			return fmt.Errorf("wallet %s is inconsistent: %d issue(s)", r.UserID, len(r.Issues))
		}
		return nil
	},
}

func writeReport(out io.Writer, r reconcile.Report) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSTORED\tREPLAYED\tENTRIES\tOK")
	for _, l := range r.Kinds {
		ok := "yes"
		if !l.Match {
			ok = "NO"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.Kind, l.Stored, l.Replayed, l.Entries, ok)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\nspendable total: stored %s, expected %s\n", r.StoredTotal.StringFixed(2), r.ExpectedTotal.StringFixed(2))
	for _, is := range r.Issues {
		if is.TransactionID != "" {
			fmt.Fprintf(out, "  ! %s %s: %s\n", is.Kind, is.TransactionID, is.Message)
			continue
		}
		fmt.Fprintf(out, "  ! %s\n", is.Message)
	}
	if r.Consistent {
		fmt.Fprintln(out, "consistent")
	}
}

var walletRoleCmd = &cobra.Command{
	Use:   "role USER_ID affiliate|instagram",
	Short: "Lock in a marketing role (permanent)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := audit.WithActor(cmd.Context(), operatorActor)
		w, err := deps.Wallet.AssignRole(ctx, args[0], wallet.MarketingRole(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s marketing role: %s\n", w.UserID, w.MarketingRole)
		return nil
	},
}

var walletCreditCmd = &cobra.Command{
	Use:   "credit USER_ID",
	Short: "Apply a manual credit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdjustment(cmd, args[0], wallet.DirectionCredit)
	},
}

var walletDebitCmd = &cobra.Command{
	Use:   "debit USER_ID",
	Short: "Apply a manual debit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdjustment(cmd, args[0], wallet.DirectionDebit)
	},
}

// adjustmentFromFlags parses the credit/debit flags without touching the ledger.
func adjustmentFromFlags(cmd *cobra.Command, userID string) (wallet.MutationRequest, error) {
	kind, _ := cmd.Flags().GetString("kind")
	rawAmount, _ := cmd.Flags().GetString("amount")
	source, _ := cmd.Flags().GetString("source")
	ref, _ := cmd.Flags().GetString("ref")
	note, _ := cmd.Flags().GetString("note")

	k := wallet.Kind(kind)
	if !k.Valid() {
		return wallet.MutationRequest{}, fmt.Errorf("unknown kind %q", kind)
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return wallet.MutationRequest{}, fmt.Errorf("amount: %w", err)
	}
	if source == "" {
		source = wallet.SourceAdminAdjustment
	}
	if !wallet.IsAdminSource(source) {
		return wallet.MutationRequest{}, fmt.Errorf("source %q must start with admin_", source)
	}
	return wallet.MutationRequest{
		UserID:      userID,
		Kind:        k,
		Amount:      amount,
		Source:      source,
		ReferenceID: ref,
		Description: note,
	}, nil
}

func runAdjustment(cmd *cobra.Command, userID string, dir wallet.Direction) error {
	req, err := adjustmentFromFlags(cmd, userID)
	if err != nil {
		return err
	}
	deps, err := openDeps(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	w, applied, err := applyAdjustment(cmd, deps, req, dir)
	outcome := wallet.OutcomeOf(err)
	if err == nil && !applied {
		outcome = wallet.OutcomeDuplicate
	}
	if aerr := deps.Audit.LogAdminAdjustment(cmd.Context(), userID, operatorActor, string(req.Kind), string(dir),
		req.Amount.String(), req.ReferenceID, req.Description, outcome); aerr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: audit log failed: %v\n", aerr)
	}
	if err != nil {
		return err
	}
	if !applied {
		fmt.Fprintf(cmd.OutOrStdout(), "reference %q already applied; nothing changed\n", req.ReferenceID)
	}
	b := deps.Wallet.Breakdown(w)
	return printResult(cmd, b, func(out io.Writer) { writeBreakdown(out, w, b) })
}

func applyAdjustment(cmd *cobra.Command, deps *bootstrap.Deps, req wallet.MutationRequest, dir wallet.Direction) (wallet.Wallet, bool, error) {
	ctx := cmd.Context()
	switch {
	case dir == wallet.DirectionDebit:
		w, err := deps.Wallet.Debit(ctx, req)
		return w, err == nil, err
	case req.ReferenceID != "":
		return deps.Wallet.CreditOnce(ctx, req)
	default:
		w, err := deps.Wallet.Credit(ctx, req)
		return w, err == nil, err
	}
}
