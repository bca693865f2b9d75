package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations (admin accounts only)",
	}

	cmd.AddCommand(newAdminLsCmd())
	cmd.AddCommand(newAdminRmCmd())

	return cmd
}

func newAdminLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List every file on the server",
		Args:  cobra.NoArgs,
		RunE:  runAdminLs,
	}
}

func newAdminRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete any file regardless of owner",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminRm,
	}

	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// requireAdmin refuses early when the saved session is known not to be an
// admin. The server enforces the real check; this just saves a round-trip
// and gives a clearer message.
func requireAdmin(env *appEnv) error {
	if claims, ok := env.sess.Claims(); ok && !claims.IsAdmin {
		return fmt.Errorf("this command requires an admin account")
	}

	return nil
}

func runAdminLs(_ *cobra.Command, _ []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	if err := requireAdmin(env); err != nil {
		return err
	}

	files, err := env.client.AdminListFiles(context.Background())
	if err != nil {
		return err
	}

	if flagJSON {
		rows := make([]lsFile, 0, len(files))
		for i := range files {
			rows = append(rows, toLsFile(&files[i]))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	}

	fmt.Printf("All files (%d)\n", len(files))

	if len(files) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(files))
	for i := range files {
		rec := &files[i]
		rows = append(rows, []string{rec.ID, rec.OriginalName, formatSize(rec.SizeBytes), rec.OwnerEmail})
	}

	printTable(os.Stdout, []string{"ID", "NAME", "SIZE", "OWNER"}, rows)

	return nil
}

func runAdminRm(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	if err := requireAdmin(env); err != nil {
		return err
	}

	fileID := args[0]

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Fprintf(os.Stderr, "Delete file %s for its owner and everyone it is shared with? [y/N] ", fileID)

		var answer string

		_, _ = fmt.Scanln(&answer)

		if answer != "y" && answer != "Y" {
			statusf("Aborted.\n")
			return nil
		}
	}

	if err := env.client.AdminDelete(context.Background(), fileID); err != nil {
		return err
	}

	statusf("Deleted %s.\n", fileID)

	return nil
}
