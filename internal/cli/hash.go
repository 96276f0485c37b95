package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"finance-etl/internal/app"
	"finance-etl/internal/identity"
)

var hashSource string

var hashCmd = &cobra.Command{
	Use:   "hash <data_type> <discriminator>...",
	Short: "Print the instrument id assigned to a data type and its discriminators",
	Example: `  finetl hash stock GOOGL
  finetl hash crypto BTC USD
  finetl hash --source "Yahoo Finance" financials AAPL`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := getApp().Hash(app.HashOptions{
			Source:         hashSource,
			DataType:       args[0],
			Discriminators: args[1:],
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	hashCmd.Flags().StringVar(&hashSource, "source", identity.SourceAlphaVantage, "Data source name")
}
