package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BearBump/TrackRisk/config"
	"github.com/BearBump/TrackRisk/internal/integrations/carrier/providers"
	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/services/checker"
	"github.com/BearBump/TrackRisk/internal/tracking"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trackctl",
		Short:         "Check Etsy shipment tracking numbers and draft buyer messages",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", os.Getenv("configPath"), "Path to config YAML (provider section is used)")

	root.AddCommand(detectCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(templateCmd())
	return root
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [tracking-number]",
		Short: "Guess the carrier from the tracking number shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tracking.DetectCarrier(args[0]))
			return err
		},
	}
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [tracking-number]",
		Short: "Fetch tracking, normalize it and classify delivery risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			carrierHint, _ := cmd.Flags().GetString("carrier")

			pc, err := providerConfig(cfgPath)
			if err != nil {
				return err
			}
			client, provider, err := providers.New(pc)
			if err != nil {
				return err
			}
			c := checker.New(client,
				checker.WithProviderName(string(provider)),
				checker.WithTimeout(pc.Timeout()),
			)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := c.Check(ctx, models.TrackingQuery{TrackingNumber: args[0], CarrierHint: carrierHint})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("carrier", "", "Carrier hint (usps, ups, fedex, dhl); detected when empty")
	return cmd
}

// providerConfig читает секцию provider из файла, а без файла берёт только env.
func providerConfig(path string) (config.ProviderConfig, error) {
	if path == "" {
		return config.ProviderFromEnv()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.ProviderConfig{}, err
	}
	return cfg.Provider, nil
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Draft a buyer message for a status and risk level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			risk, _ := cmd.Flags().GetString("risk")
			orderID, _ := cmd.Flags().GetString("order")

			s := models.TrackingStatus(status)
			if !s.Valid() {
				return errors.Errorf("unknown status %q", status)
			}
			r := models.RiskLevel(risk)
			if !r.Valid() {
				return errors.Errorf("unknown risk level %q", risk)
			}
			return printJSON(cmd.OutOrStdout(), tracking.SelectTemplate(s, r, orderID))
		},
	}
	cmd.Flags().String("status", string(models.StatusInTransit), "Tracking status")
	cmd.Flags().String("risk", string(models.RiskGreen), "Risk level (green, yellow, red)")
	cmd.Flags().String("order", "", "Etsy receipt id used in the subject")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
