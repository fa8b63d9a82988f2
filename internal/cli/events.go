package cli

import (
	"fmt"
	"io"
	"os"

	"storefront-wallet/internal/events"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsPublishCmd)
	eventsCmd.AddCommand(eventsApplyCmd)

	for _, c := range []*cobra.Command{eventsPublishCmd, eventsApplyCmd} {
		c.Flags().StringP("file", "f", "-", "Envelope JSON file, - for stdin")
	}
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Publish or apply ledger events",
}

var eventsPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an envelope to the ledger events topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := readEnvelope(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		pub, err := events.NewPublisher(cfg.Kafka)
		if err != nil {
			return err
		}
		defer pub.Close()

		partition, offset, err := pub.Publish(env)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s partition %d offset %d\n", env.Type, cfg.Kafka.Topics[0], partition, offset)
		return nil
	},
}

var eventsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an envelope directly to the ledger, bypassing Kafka",
	Long: `Apply one envelope through the same adapters the consumer uses. Credits are
deduplicated by reference, so applying an already-consumed event changes nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := readEnvelope(cmd)
		if err != nil {
			return err
		}
		deps, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		res, err := deps.Dispatcher.Dispatch(cmd.Context(), env)
		if err != nil {
			return err
		}
		return printResult(cmd, res, func(out io.Writer) {
			for _, c := range res.Credits {
				state := "applied"
				if !c.Applied {
					state = "already applied"
				}
				fmt.Fprintf(out, "%s %s %s (%s %s): %s\n", c.UserID, c.Kind, c.Amount, c.Source, c.ReferenceID, state)
			}
			if len(res.Credits) == 0 {
				fmt.Fprintln(out, "event produced no credits")
			}
		})
	},
}

func readEnvelope(cmd *cobra.Command) (events.Envelope, error) {
	path, _ := cmd.Flags().GetString("file")
	var (
		raw []byte
		err error
	)
	if path == "-" || path == "" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return events.Envelope{}, fmt.Errorf("read envelope: %w", err)
	}
	return events.DecodeEnvelope(raw)
}
