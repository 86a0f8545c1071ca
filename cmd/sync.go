package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var (
	syncMode     string
	syncSince    string
	syncDatabase string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize source databases into the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync()
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncMode, "mode", "full", "sync mode: full, incremental or database")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "RFC3339 lower bound for incremental mode")
	syncCmd.Flags().StringVar(&syncDatabase, "database", "", "source database id for database mode")
	rootCmd.AddCommand(syncCmd)
}

func runSync() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// One sync process at a time: concurrent runs would interleave
	// writes under the object store root.
	lock := flock.New(filepath.Join(a.cfg.ObjectStoreRoot, ".sync.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another sync is already running")
	}
	defer lock.Unlock() //nolint:errcheck

	var result any
	switch syncMode {
	case "full":
		result, err = a.syncer.FullSync(ctx)
	case "incremental":
		var since time.Time
		if syncSince != "" {
			since, err = time.Parse(time.RFC3339, syncSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
		}
		result, err = a.syncer.IncrementalSync(ctx, since)
	case "database":
		if syncDatabase == "" {
			return fmt.Errorf("--database is required for mode=database")
		}
		result, err = a.syncer.SyncDatabase(ctx, syncDatabase)
	default:
		return fmt.Errorf("unknown mode %q", syncMode)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
