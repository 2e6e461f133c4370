package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pocketbase/pocketbase"
	"github.com/spf13/cobra"

	"theater-site/models"
)

// registerCommands adds the admin re-drive tools next to PocketBase's own
// serve and migrate commands.
func registerCommands(app *pocketbase.PocketBase, d *deps) {
	bootstrap := func(*cobra.Command, []string) error {
		if app.IsBootstrapped() {
			return nil
		}
		return app.Bootstrap()
	}

	var providerName string
	processCmd := &cobra.Command{
		Use:     "process-payment <paymentId>",
		Short:   "Fetch a payment from its provider and apply its status",
		Args:    cobra.ExactArgs(1),
		PreRunE: bootstrap,
		RunE: func(c *cobra.Command, args []string) error {
			res, err := d.webhooks.ProcessPayment(c.Context(), models.Provider(providerName), args[0])
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), res)
		},
	}
	processCmd.Flags().StringVar(&providerName, "provider", "", "payment provider (defaults to the primary one)")

	var resend bool
	generateCmd := &cobra.Command{
		Use:     "generate-tickets <paymentId>",
		Short:   "Mint the tickets of a stored payment and email them",
		Args:    cobra.ExactArgs(1),
		PreRunE: bootstrap,
		RunE: func(c *cobra.Command, args []string) error {
			res, err := d.webhooks.GenerateTickets(c.Context(), args[0], resend)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), res)
		},
	}
	generateCmd.Flags().BoolVar(&resend, "resend", false, "email tickets that already exist")

	var overwrite bool
	seedCmd := &cobra.Command{
		Use:     "seed <file.yaml>",
		Short:   "Load the site content document from a YAML file",
		Args:    cobra.ExactArgs(1),
		PreRunE: bootstrap,
		RunE: func(c *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			seeded, err := d.content.SeedFromYAML(c.Context(), f, overwrite)
			if err != nil {
				return err
			}
			if !seeded {
				fmt.Fprintln(c.OutOrStdout(), "site content already present, use --overwrite to replace it")
				return nil
			}
			fmt.Fprintln(c.OutOrStdout(), "site content seeded")
			return nil
		},
	}
	seedCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing content")

	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Manage the site content document",
	}
	contentCmd.AddCommand(seedCmd)

	app.RootCmd.AddCommand(processCmd, generateCmd, contentCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
