package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:     "push <file>",
	GroupID: "sync",
	Short:   "Upload a list file and its items",
	Long: `Push a shopping list JSON file to the store.

The list and its items are saved as one record tree. Lists that were never
synced get fresh record ids. The synced list is written to the inbox under
its record id; the source file is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := catalog.ReadListFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		list := f.ToList()
		if err := a.coordinator.UpdateItem(ctx, list); err != nil {
			return fmt.Errorf("failed to push %s: %w", args[0], err)
		}

		written, err := catalog.WriteListFile(cfg.InboxDir(), catalog.FromList(list))
		if err != nil {
			return err
		}

		fmt.Printf("%s Pushed %q (%d items)\n", ui.RenderPass("✓"), list.Name, len(list.Items()))
		fmt.Printf("   ID: %s\n", list.RecordID())
		fmt.Printf("   Written: %s\n", written)
		return nil
	},
}

var shareCmd = &cobra.Command{
	Use:     "share <file>",
	GroupID: "sharing",
	Short:   "Share a list file",
	Long: `Share a shopping list with other users.

The list is pushed together with a new share grant rooted at it. The share
id printed on success is what the other party passes to 'zonesync accept'.
With --invite the share is also written to an invitation file that
'zonesync accept --invite' reads.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		title, _ := cmd.Flags().GetString("title")
		invitePath, _ := cmd.Flags().GetString("invite")
		owner, _ := cmd.Flags().GetString("owner")

		f, err := catalog.ReadListFile(args[0])
		if err != nil {
			return err
		}
		if title == "" {
			title = f.ShareTitle
		}
		if title == "" {
			title = f.Name
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		list := f.ToList()
		shr, err := a.coordinator.ShareItem(ctx, list, title, catalog.ShareType)
		if err != nil {
			return fmt.Errorf("failed to share %s: %w", args[0], err)
		}

		written, err := catalog.WriteListFile(cfg.InboxDir(), catalog.FromList(list))
		if err != nil {
			return err
		}

		fmt.Printf("%s Shared %q as %q\n", ui.RenderPass("✓"), list.Name, title)
		fmt.Printf("   List: %s\n", list.RecordID())
		fmt.Printf("   Share: %s\n", shr.ID.Name)
		fmt.Printf("   Zone: %s\n", shr.ID.Zone)
		fmt.Printf("   Written: %s\n", written)

		if invitePath != "" {
			if err := catalog.WriteInvitation(invitePath, catalog.NewInvitation(list, shr, owner)); err != nil {
				return err
			}
			fmt.Printf("   Invitation: %s\n", invitePath)
		}
		return nil
	},
}

func init() {
	shareCmd.Flags().StringP("title", "t", "", "share title (default: share_title from the file, then the list name)")
	shareCmd.Flags().String("invite", "", "also write an invitation file for 'zonesync accept --invite'")
	shareCmd.Flags().String("owner", "", "your name, recorded in the invitation")

	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(shareCmd)
}
