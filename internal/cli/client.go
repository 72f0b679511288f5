package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/store"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage client references",
}

var clientAddCmd = &cobra.Command{
	Use:   "add [ref] [name]",
	Short: "Register a client reference",
	Long: `Register a client reference with a display name.

Examples:
  fieldtrack client add ACME1 "Acme Corp"
  fieldtrack client add bkr-7 "Baker Street" --tier contract`,
	Args: cobra.MinimumNArgs(2),
	RunE: runClientAdd,
}

var clientListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clients",
	RunE:    runClientList,
}

var clientRenameCmd = &cobra.Command{
	Use:   "rename [old-ref] [new-ref]",
	Short: "Rename a client reference",
	Long: `Rename a client reference. Every job pointing at the old reference is
rewritten to the new one; the change syncs like any other edit.`,
	Args: cobra.ExactArgs(2),
	RunE: runClientRename,
}

var (
	clientAddTier    string
	clientRenameName string
)

func init() {
	clientAddCmd.Flags().StringVar(&clientAddTier, "tier", "", "Support tier (standard, priority, contract)")
	clientRenameCmd.Flags().StringVar(&clientRenameName, "name", "", "New display name (defaults to the current one)")

	clientCmd.AddCommand(clientAddCmd)
	clientCmd.AddCommand(clientListCmd)
	clientCmd.AddCommand(clientRenameCmd)
}

func runClientAdd(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	now := clock.System().Now().UTC()
	c := model.Client{
		Ref:        model.NormalizeRef(args[0]),
		Name:       strings.Join(args[1:], " "),
		Tier:       model.SupportTier(clientAddTier),
		CreatedAt:  now,
		LastUsedAt: now,
		Dirty:      true,
	}

	if err := st.CreateClient(c); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	fmt.Printf("✓ Client registered: %s (%s)\n", c.Name, c.Ref)

	MaybeSyncAfterChange(st, false)
	return nil
}

func runClientList(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	clients, err := st.ListClients()
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}

	if len(clients) == 0 {
		fmt.Println("No clients yet. Add one with: fieldtrack client add REF \"Name\"")
		return nil
	}

	fmt.Printf("\n%-10s  %-28s  %-10s  %s\n", "REF", "NAME", "TIER", "LAST USED")
	fmt.Println(strings.Repeat("─", 66))
	for _, c := range clients {
		tier := string(c.Tier)
		if tier == "" {
			tier = "-"
		}
		fmt.Printf("%-10s  %-28s  %-10s  %s %s\n",
			c.Ref, c.Name, tier, c.LastUsedAt.Format("2006-01-02"), dirtyMark(c.Dirty))
	}
	fmt.Println()
	return nil
}

func runClientRename(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	oldRef := model.NormalizeRef(args[0])
	newRef := model.NormalizeRef(args[1])

	name := clientRenameName
	if name == "" {
		existing, err := st.GetClient(oldRef)
		if err != nil {
			return fmt.Errorf("client %s not found", oldRef)
		}
		name = existing.Name
	}

	rewritten, err := st.RenameClientRef(oldRef, newRef, name, clock.System().Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to rename client: %w", err)
	}

	fmt.Printf("✓ Renamed %s → %s (%d job(s) updated)\n", oldRef, newRef, rewritten)

	MaybeSyncAfterChange(st, false)
	return nil
}
