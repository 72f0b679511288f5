package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/internal/store"
	"github.com/fieldtrack/fieldtrack/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync jobs with the server",
	Long: `Sync your jobs and clients across devices.

Commands:
  fieldtrack sync              # Sync now (push then pull)
  fieldtrack sync status       # Show sync status`,
	RunE: runSync,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE:  runSyncStatus,
}

var syncConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure sync settings",
	RunE:  runSyncConfig,
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncConfigCmd)

	syncConfigCmd.Flags().String("server", "", "Set server URL")
}

func runSync(cmd *cobra.Command, args []string) error {
	client, err := sync.NewClient()
	if err != nil {
		return err
	}
	if !client.IsLoggedIn() {
		return fmt.Errorf("not logged in; run: fieldtrack auth login")
	}

	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	engine := sync.NewEngine(st, client.Remote())
	defer engine.Dispose()

	before, _ := engine.DirtyCount()

	fmt.Println("🔄 Synchronizing...")
	if err := engine.ForceSync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	_ = client.UpdateSyncTime()

	after, _ := engine.DirtyCount()
	fmt.Printf("✓ Sync complete! Pushed: %d", before-after)
	if after > 0 {
		fmt.Printf(" (%d still pending)", after)
	}
	fmt.Println()
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	client, err := sync.NewClient()
	if err != nil {
		return err
	}

	fmt.Printf("Server:    %s\n", client.ServerURL())
	if !client.IsLoggedIn() {
		fmt.Println("Status:    Not logged in")
		return nil
	}

	fmt.Printf("User ID:   %s\n", client.UserID())

	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	dirty, err := st.DirtyCount()
	if err != nil {
		return err
	}
	watermark, err := st.Watermark()
	if err != nil {
		return err
	}

	fmt.Printf("Pending:   %d change(s) awaiting upload\n", dirty)
	if watermark.Equal(time.Unix(0, 0)) {
		fmt.Println("Watermark: never pulled")
	} else {
		fmt.Printf("Watermark: %s\n", watermark.Format(time.RFC3339))
	}
	fmt.Println("Status:    ✓ Logged in")
	return nil
}

func runSyncConfig(cmd *cobra.Command, args []string) error {
	client, err := sync.NewClient()
	if err != nil {
		return err
	}

	server, _ := cmd.Flags().GetString("server")
	if server != "" {
		if err := client.SetServer(server); err != nil {
			return err
		}
		fmt.Printf("✓ Server set to: %s\n", server)
		return nil
	}

	fmt.Printf("Server: %s\n", client.ServerURL())
	return nil
}
