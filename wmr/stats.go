package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/itohio/wmr/pkg/magneto"
	"github.com/itohio/wmr/pkg/store"
	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		dbPath string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print totals from the event store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.Storage.Path
			}
			if dbPath == "" {
				return errors.New("no event store configured, set storage.path or --db")
			}

			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			return printStats(cmd.OutOrStdout(), st, runID, a.cfg.Meter.LitersPerPulse)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Event store path, overrides config")
	cmd.Flags().StringVar(&runID, "run", "", "Show details of a single run")
	return cmd
}

func printStats(w io.Writer, st *store.Store, runID string, litersPerPulse float64) error {
	if runID != "" {
		return printRun(w, st, runID, litersPerPulse)
	}

	runs, err := st.Runs()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSOURCE\tSTARTED\tPULSES\tLITERS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\n",
			r.ID, r.Source, r.Started.Format("2006-01-02 15:04:05"), r.Pulses, float64(r.Pulses)*litersPerPulse)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	totals, err := st.Totals("")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d runs, %d pulses, %.1f L\n", len(runs), totals.Pulses, float64(totals.Pulses)*litersPerPulse)
	return nil
}

func printRun(w io.Writer, st *store.Store, runID string, litersPerPulse float64) error {
	t, err := st.Totals(runID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", runID)
	fmt.Fprintf(tw, "pulses\t%d (center %d, tangent %d)\n", t.Pulses, t.CenterPulses, t.TangentPulses)
	fmt.Fprintf(tw, "volume\t%.1f L\n", float64(t.Pulses)*litersPerPulse)
	fmt.Fprintf(tw, "anomalies\t%d\n", t.Anomalies)
	fmt.Fprintf(tw, "drifts\t%d\n", t.Drifts)
	fmt.Fprintf(tw, "no fits\t%d\n", t.NoFits)
	fmt.Fprintf(tw, "fits\t%d\n", t.Fits)

	fit, at, err := st.LastFit(runID)
	switch {
	case errors.Is(err, store.ErrNoFit):
	case err != nil:
		return err
	default:
		fmt.Fprintf(tw, "last fit\t%s center (%.1f, %.1f) radius (%.1f, %.1f) tilt %.1f°\n",
			at.Format("15:04:05"), fit.Center.X, fit.Center.Y, fit.Radius.X, fit.Radius.Y, fit.Angle.Degrees())
	}
	return tw.Flush()
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := magneto.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p.Name)
			}
			return nil
		},
	}
}
