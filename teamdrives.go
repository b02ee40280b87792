package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samaker/samaker/internal/provision"
)

func newListTeamDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-teamdrives",
		Short: "List shared drives visible to the authorized user",
		Args:  cobra.NoArgs,
		RunE:  runListTeamDrives,
	}
}

func runListTeamDrives(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	client, err := newAPIClient(cmd.Context(), logger)
	if err != nil {
		return err
	}

	drives, err := client.TeamDrives(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing shared drives: %w", err)
	}

	if flagJSON {
		return printJSON(drives)
	}

	if len(drives) == 0 {
		fmt.Println("No shared drives found.")
		return nil
	}

	for _, d := range drives {
		fmt.Printf("%s\t%s\n", d.ID, d.Name)
	}

	return nil
}

func newCreateTeamDriveCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create-teamdrive",
		Short: "Create a new shared drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateTeamDrive(cmd, name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "shared drive name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runCreateTeamDrive(cmd *cobra.Command, name string) error {
	logger := buildLogger()

	client, err := newAPIClient(cmd.Context(), logger)
	if err != nil {
		return err
	}

	drive, err := client.CreateTeamDrive(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("creating shared drive %q: %w", name, err)
	}

	statusf("Created shared drive %q (%s)", drive.Name, drive.ID)

	return nil
}

func newSetTeamDriveUsersCmd() *cobra.Command {
	var (
		name      string
		keyPrefix string
	)

	cmd := &cobra.Command{
		Use:   "set-teamdrive-users",
		Short: "Grant provisioned service accounts organizer access to a shared drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetTeamDriveUsers(cmd, name, keyPrefix)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "shared drive name (required)")
	cmd.Flags().StringVarP(&keyPrefix, "key-prefix", "k", "", "account name prefix whose keys to grant (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("key-prefix")

	return cmd
}

func runSetTeamDriveUsers(cmd *cobra.Command, name, keyPrefix string) error {
	logger := buildLogger()

	client, err := newAPIClient(cmd.Context(), logger)
	if err != nil {
		return err
	}

	granted, err := provision.ShareTeamDrive(cmd.Context(), client, name, keyPrefix,
		resolvedCfg.ServiceAccountFolder, logger)
	for _, email := range granted {
		statusf("Granted %s", email)
	}

	if err != nil {
		var shareErr *provision.ShareError
		if errors.As(err, &shareErr) {
			return fmt.Errorf("granted %d account(s), %d still pending: %w",
				len(shareErr.Granted), len(shareErr.Pending), err)
		}

		return err
	}

	statusf("Done: %d account(s) granted access to %q", len(granted), name)

	return nil
}
