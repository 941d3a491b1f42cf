package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanwake/internal/ui"
)

func (c *cli) newGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage device groups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			groups, err := st.ListGroups()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, ui.GroupTable(groups, c.cfg.DefaultGroup, tableWidth()))
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.InsertGroupIfAbsent(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "group %s ready\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add)
	return cmd
}
