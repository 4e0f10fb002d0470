package command

import (
	"cmp"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gatewaykit/gwbundle/internal/wire"
)

func init() {
	inspect := &cobra.Command{
		Use:   "inspect <bundle>",
		Short: "List the items of a bundle document",
		Long: `Inspect prints one row per item of a bundle document, in emission order,
together with the installer action of its mapping.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := wire.Read(f)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("#", "Type", "Name", "ID", "Action")
			for i, item := range doc.Items {
				action := ""
				if m, ok := doc.Mapping(item.Kind, item.ID); ok {
					action = string(m.Action)
					if m.MapBy != "" {
						action += " by " + m.MapBy
					}
				}
				if err := table.Append([]string{
					strconv.Itoa(i + 1),
					item.Kind.String(),
					cmp.Or(item.Name, "-"),
					item.ID,
					action,
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	RootCommand.AddCommand(inspect)
}
