package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samaker/samaker/internal/ledger"
	"github.com/samaker/samaker/internal/provision"
)

func newListAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-accounts",
		Short: "List service accounts in the configured project",
		Args:  cobra.NoArgs,
		RunE:  runListAccounts,
	}
}

func runListAccounts(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	client, err := newAPIClient(cmd.Context(), logger)
	if err != nil {
		return err
	}

	accounts, err := client.ServiceAccounts(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing service accounts: %w", err)
	}

	if flagJSON {
		return printJSON(accounts)
	}

	if len(accounts) == 0 {
		fmt.Println("No service accounts found.")
		return nil
	}

	for _, sa := range accounts {
		fmt.Printf("%s\t%s\n", sa.Email, sa.DisplayName)
	}

	return nil
}

func newCreateAccountsCmd() *cobra.Command {
	var (
		name   string
		amount int
	)

	cmd := &cobra.Command{
		Use:   "create-accounts",
		Short: "Create numbered service accounts and save their key files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateAccounts(cmd, name, amount)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "account name prefix (required)")
	cmd.Flags().IntVarP(&amount, "amount", "a", 1, "number of accounts to create")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runCreateAccounts(cmd *cobra.Command, name string, amount int) error {
	logger := buildLogger()

	client, err := newAPIClient(cmd.Context(), logger)
	if err != nil {
		return err
	}

	// The ledger is an audit trail. Losing it must never block provisioning,
	// the key folder on disk remains the source of truth for numbering.
	var recorder provision.Recorder

	store, err := ledger.Open(resolvedCfg.LedgerPath, logger)
	if err != nil {
		logger.Warn("ledger unavailable, continuing without history",
			"path", resolvedCfg.LedgerPath, "error", err)
	} else {
		defer store.Close()
		recorder = store
	}

	prov := provision.NewProvisioner(client, recorder, logger)

	created, err := prov.Run(cmd.Context(), name, amount, resolvedCfg.ServiceAccountFolder)
	for _, acct := range created {
		statusf("Created %s (%s)", acct.Name, acct.KeyPath)
	}

	if err != nil {
		if len(created) > 0 {
			return fmt.Errorf("created %d of %d accounts: %w", len(created), amount, err)
		}

		return err
	}

	statusf("Done: %d account(s) created under prefix %q", len(created), name)

	return nil
}

func newHistoryCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previously provisioned accounts for a prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "account name prefix (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runHistory(cmd *cobra.Command, name string) error {
	logger := buildLogger()

	store, err := ledger.Open(resolvedCfg.LedgerPath, logger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer store.Close()

	entries, err := store.AccountsByPrefix(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	if flagJSON {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Printf("No recorded accounts for prefix %q.\n", name)
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\n", e.Account.Name, e.Account.Email,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
