package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/materialize"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var acceptCmd = &cobra.Command{
	Use:     "accept",
	GroupID: "sharing",
	Short:   "Accept a shared list",
	Long: `Accept a share invitation and load the shared list.

The shared subtree is copied into the shared database and the root list is
rebuilt from it, with its items, and written to the inbox.

The share is named either by an invitation file written by
'zonesync share --invite' or by its record names.

Examples:
  zonesync accept --invite invite.json
  zonesync accept --root 3f1c... --share 9a0e... --owner alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		inv, err := invitationFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		list, err := materialize.LoadShare[*catalog.ShoppingList](ctx, a.loader, inv.Metadata(), catalog.ListKind)
		if err != nil {
			return fmt.Errorf("failed to accept share: %w", err)
		}

		written, err := catalog.WriteListFile(cfg.InboxDir(), catalog.FromList(list))
		if err != nil {
			return err
		}

		fmt.Printf("%s Accepted %q (%d items)\n", ui.RenderPass("✓"), list.Name, len(list.Items()))
		fmt.Printf("   Written: %s\n", written)
		return nil
	},
}

// invitationFromFlags reads --invite, then lets the name flags override it.
func invitationFromFlags(cmd *cobra.Command) (*catalog.Invitation, error) {
	inv := &catalog.Invitation{}
	if path, _ := cmd.Flags().GetString("invite"); path != "" {
		read, err := catalog.ReadInvitation(path)
		if err != nil {
			return nil, err
		}
		inv = read
	}

	for flag, field := range map[string]*string{
		"root":       &inv.Root,
		"share":      &inv.Share,
		"zone-owner": &inv.ZoneOwner,
		"owner":      &inv.Owner,
	} {
		if cmd.Flags().Changed(flag) {
			*field, _ = cmd.Flags().GetString(flag)
		}
	}

	if inv.Root == "" {
		return nil, errors.New("either --invite or --root is required")
	}
	return inv, nil
}

func init() {
	acceptCmd.Flags().String("invite", "", "invitation file written by 'zonesync share --invite'")
	acceptCmd.Flags().String("root", "", "record name of the shared list")
	acceptCmd.Flags().String("share", "", "record name of the share grant")
	acceptCmd.Flags().String("zone-owner", "", "owner of the zone holding the share (default: current user)")
	acceptCmd.Flags().String("owner", "", "name of the user who shared the list")

	rootCmd.AddCommand(acceptCmd)
}
