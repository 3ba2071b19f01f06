package simulate

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/guardline/pkg/logger"
	"github.com/spf13/cobra"
)

// Default flag values.
const (
	defaultSubjects = 10
	defaultCount    = 20
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 10 * time.Second
	defaultRunLimit = 10 * time.Minute
)

// NewCommand builds the simulate command tree.
func NewCommand() *cobra.Command {
	cfg := &Config{}
	var (
		logLevel string
		runLimit time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play threat scenarios against a running guardline service",
		Long: `Simulate posts scripted event sequences for a set of subjects, checks every
returned score against the built-in scoring rules, probes event id
deduplication and confirms safety for each subject when done.`,
		Example: `  simulate --scenario fall --subjects 50
  simulate --scenario random --count 100 --url http://localhost:9080 --verbose`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}
			ctx := cmd.Context()
			if runLimit > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runLimit)
				defer cancel()
			}
			stats, err := Run(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d events scored, %d armed, %d duplicates in %s\n",
				stats.EventsSuccessful, stats.Armed, stats.EventsDuplicate, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.StringVar(&cfg.Scenario, "scenario", "fall", "Scenario to play: "+strings.Join(Scenarios(), ", "))
	f.IntVar(&cfg.Subjects, "subjects", defaultSubjects, "Number of simulated subjects")
	f.IntVar(&cfg.Count, "count", defaultCount, "Events per subject for the random scenario")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent subject workers")
	f.IntVar(&cfg.WindowSize, "window", defaultWindowSize, "Event window size configured on the service")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.Interval, "interval", 0, "Pause between events of one subject")
	f.StringVar(&cfg.Timezone, "timezone", "Local", "Zone the service reads the hour in")
	f.StringVar(&cfg.OutputFile, "output", "", "Write a JSON report of every submission to this file")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every scored event")
	f.StringVar(&logLevel, "log-level", "info", "Log level")
	f.DurationVar(&runLimit, "limit", defaultRunLimit, "Abort the run after this long")

	cmd.AddCommand(newScenariosCommand())
	return cmd
}

func newScenariosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the available scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range Scenarios() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
