// Package cli implements anomalyctl, which scores invoice batch files offline with the
// same engine and settings as the service.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	"github.com/bibbank/invoice-anomaly/internal/application/usecase"
	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/config"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/ml"
	"github.com/bibbank/invoice-anomaly/pkg/events"
	"github.com/bibbank/invoice-anomaly/pkg/observability"
)

// ErrHighRisk is returned by score --fail-on-high when a batch contains a HIGH verdict.
var ErrHighRisk = errors.New("batch contains high-risk invoices")

type app struct {
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	settingsFile string
	logLevel     string
}

// NewRootCommand builds the anomalyctl command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "anomalyctl",
		Short:         "Score invoice batches for anomalies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.settingsFile, "settings", "", "engine settings YAML file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(a.newScoreCmd(), a.newSettingsCmd(), a.newVersionCmd())
	return root
}

func (a *app) settings() (config.EngineSettings, error) {
	if a.settingsFile == "" {
		return config.DefaultEngineSettings(), nil
	}
	return config.LoadEngineFile(a.settingsFile)
}

func (a *app) newScoreCmd() *cobra.Command {
	var (
		tenant     string
		pretty     bool
		failOnHigh bool
	)
	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Score a JSON invoice batch and print the assessment",
		Long: `Score reads a batch from file, or stdin when file is "-" or omitted. The batch is
either a JSON array of invoices or an object with an "invoices" array. The assessment
is written to stdout as JSON; logs go to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			invoices, err := a.readBatch(path)
			if err != nil {
				return err
			}

			tenantID := uuid.New()
			if tenant != "" {
				if tenantID, err = uuid.Parse(tenant); err != nil {
					return fmt.Errorf("invalid --tenant: %w", err)
				}
			}

			scorer, err := a.scorer()
			if err != nil {
				return err
			}
			resp, err := scorer.Execute(cmd.Context(), dto.ScoreBatchRequest{
				TenantID: tenantID,
				Source:   "cli",
				Invoices: invoices,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(a.stdout)
			if pretty {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("writing assessment: %w", err)
			}
			if failOnHigh && resp.HighRiskCount > 0 {
				return ErrHighRisk
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID recorded on the assessment (random when empty)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().BoolVar(&failOnHigh, "fail-on-high", false, "exit non-zero when any invoice is HIGH risk")
	return cmd
}

func (a *app) newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the effective engine settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			if _, err := s.EngineConfig(); err != nil {
				return err
			}
			enc := yaml.NewEncoder(a.stdout)
			defer enc.Close()
			return enc.Encode(s)
		},
	}
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(a.stdout, service.EngineVersion)
		},
	}
}

// scorer wires the score use case to a discarding repository and publisher.
func (a *app) scorer() (*usecase.ScoreBatch, error) {
	logger := observability.InitLogger(observability.LogConfig{
		Level:       a.logLevel,
		Format:      "text",
		ServiceName: "anomalyctl",
		Output:      a.stderr,
	})

	s, err := a.settings()
	if err != nil {
		return nil, err
	}
	engineCfg, err := s.EngineConfig()
	if err != nil {
		return nil, err
	}
	forest, err := ml.NewIsolationForest(s.ForestConfig(), logger)
	if err != nil {
		return nil, err
	}
	engine, err := service.NewEngine(engineCfg, forest, logger)
	if err != nil {
		return nil, err
	}
	return usecase.NewScoreBatch(discard{}, discard{}, engine, nil, nil, logger), nil
}

func (a *app) readBatch(path string) ([]dto.InvoiceInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(a.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var invoices []dto.InvoiceInput
		if err := json.Unmarshal(trimmed, &invoices); err != nil {
			return nil, fmt.Errorf("decoding batch: %w", err)
		}
		return invoices, nil
	}

	var batch struct {
		Invoices []dto.InvoiceInput `json:"invoices"`
	}
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, fmt.Errorf("decoding batch: %w", err)
	}
	return batch.Invoices, nil
}

type discard struct{}

func (discard) Save(context.Context, *model.BatchAssessment) error { return nil }

func (discard) FindByID(context.Context, uuid.UUID, uuid.UUID) (*model.BatchAssessment, error) {
	return nil, nil
}

func (discard) FindLatestVerdict(context.Context, uuid.UUID, string) (*model.AnomalyVerdict, error) {
	return nil, nil
}

func (discard) Publish(context.Context, ...events.DomainEvent) error { return nil }
