package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
	"github.com/SunnyJalendra/minidrive-go/internal/cache"
	"github.com/SunnyJalendra/minidrive-go/internal/config"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List your files and files shared with you",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().Bool("cached", false, "list from the local cache without contacting the server")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPut,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete a file you own",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}

	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// openCache opens the local cache database. A cache failure is reported
// but never blocks the live path — callers treat a nil store as "no
// cache".
func openCache(env *appEnv) *cache.Store {
	store, err := cache.NewStore(config.CachePath(), env.logger)
	if err != nil {
		env.logger.Warn("cache unavailable", "error", err.Error())
		return nil
	}

	return store
}

// lsOutput is the JSON schema for `ls --json`.
type lsOutput struct {
	Owned  []lsFile `json:"owned"`
	Shared []lsFile `json:"shared"`
}

type lsFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"size_bytes"`
	OwnerEmail string `json:"owner_email,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func runLs(cmd *cobra.Command, _ []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	ctx := context.Background()
	store := openCache(env)

	if store != nil {
		defer store.Close()
	}

	cached, _ := cmd.Flags().GetBool("cached")

	var listing *api.FileListing

	if cached {
		if store == nil {
			return fmt.Errorf("local cache unavailable")
		}

		listing, err = store.Listing(ctx)
		if err != nil {
			return err
		}
	} else {
		listing, err = env.client.ListFiles(ctx)
		if err != nil {
			return err
		}

		if store != nil {
			if saveErr := store.SaveListing(ctx, listing); saveErr != nil {
				env.logger.Warn("caching listing failed", "error", saveErr.Error())
			}
		}
	}

	if flagJSON {
		return printListingJSON(listing)
	}

	printListingText(listing)

	return nil
}

func printListingJSON(listing *api.FileListing) error {
	out := lsOutput{
		Owned:  make([]lsFile, 0, len(listing.Owned)),
		Shared: make([]lsFile, 0, len(listing.Shared)),
	}

	for i := range listing.Owned {
		out.Owned = append(out.Owned, toLsFile(&listing.Owned[i]))
	}

	for i := range listing.Shared {
		out.Shared = append(out.Shared, toLsFile(&listing.Shared[i]))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func toLsFile(rec *api.FileRecord) lsFile {
	f := lsFile{
		ID:         rec.ID,
		Name:       rec.OriginalName,
		SizeBytes:  rec.SizeBytes,
		OwnerEmail: rec.OwnerEmail,
	}

	if !rec.CreatedAt.IsZero() {
		f.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}

	return f
}

func printListingText(listing *api.FileListing) {
	fmt.Printf("Your files (%d)\n", len(listing.Owned))

	if len(listing.Owned) > 0 {
		rows := make([][]string, 0, len(listing.Owned))
		for i := range listing.Owned {
			rec := &listing.Owned[i]
			rows = append(rows, []string{rec.ID, rec.OriginalName, formatSize(rec.SizeBytes), formatTime(rec.CreatedAt)})
		}

		printTable(os.Stdout, []string{"ID", "NAME", "SIZE", "CREATED"}, rows)
	}

	fmt.Printf("\nShared with you (%d)\n", len(listing.Shared))

	if len(listing.Shared) > 0 {
		rows := make([][]string, 0, len(listing.Shared))
		for i := range listing.Shared {
			rec := &listing.Shared[i]
			rows = append(rows, []string{rec.ID, rec.OriginalName, formatSize(rec.SizeBytes), rec.OwnerEmail})
		}

		printTable(os.Stdout, []string{"ID", "NAME", "SIZE", "OWNER"}, rows)
	}
}

func runGet(_ *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	fileID := args[0]

	localPath := fileID
	if len(args) > 1 {
		localPath = args[1]
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", localPath, err)
	}

	n, err := env.client.Download(context.Background(), fileID, f)

	closeErr := f.Close()

	if err != nil {
		_ = os.Remove(localPath)
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", localPath, closeErr)
	}

	statusf("Downloaded %s (%s).\n", localPath, formatSize(n))

	return nil
}

func runPut(_ *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	return uploadFile(context.Background(), env, args[0])
}

// uploadFile uploads one local file, shared by `put` and the watch loop.
func uploadFile(ctx context.Context, env *appEnv, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", localPath, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory", localPath)
	}

	if err := env.client.Upload(ctx, filepath.Base(localPath), f, info.Size()); err != nil {
		return err
	}

	statusf("Uploaded %s (%s).\n", filepath.Base(localPath), formatSize(info.Size()))

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}

	if err := env.requireSession(); err != nil {
		return err
	}

	fileID := args[0]

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Fprintf(os.Stderr, "Delete file %s? [y/N] ", fileID)

		var answer string

		_, _ = fmt.Scanln(&answer)

		if answer != "y" && answer != "Y" {
			statusf("Aborted.\n")
			return nil
		}
	}

	if err := env.client.Delete(context.Background(), fileID); err != nil {
		return err
	}

	statusf("Deleted %s.\n", fileID)

	return nil
}
