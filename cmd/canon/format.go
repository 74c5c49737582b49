package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/hurttlocker/canon/internal/autok"
	"github.com/hurttlocker/canon/internal/canon"
	"github.com/hurttlocker/canon/internal/config"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printRun(run *canon.Run, format string) error {
	switch format {
	case "json":
		return writeJSON(a.stdout, run)
	case "text":
		printRunText(a.stdout, run)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

func printRunText(w io.Writer, run *canon.Run) {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Myth:     %s\n", run.MythID)
	fmt.Fprintf(w, "  Mode:     %s\n", run.Mode)
	fmt.Fprintf(w, "  Status:   %s\n", run.Status)
	fmt.Fprintf(w, "  Created:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if run.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", run.Error)
		return
	}
	if target, ok := run.Params.Target(); ok {
		fmt.Fprintf(w, "  Target:   %d\n", target)
	}
	if run.InputDigest != "" {
		fmt.Fprintf(w, "  Digest:   %s\n", run.InputDigest)
	}
	fmt.Fprintf(w, "  Coverage: %.1f%%\n", run.Metrics.Coverage*100)
	if run.Metrics.AgreementGain != nil {
		fmt.Fprintf(w, "  Agreement gain: %.3f\n", *run.Metrics.AgreementGain)
	}

	members := make(map[string][]string)
	for _, as := range run.Assignments {
		members[as.CanonicalID] = append(members[as.CanonicalID], as.PlotPointID)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CANONICAL\tPOINTS\tPREVALENCE\tPURITY\tENTROPY\tMEMBERS")
	for _, id := range run.CanonicalIDs() {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.3f\t%.3f\t%s\n",
			id,
			len(members[id]),
			run.Prevalence[id],
			run.Metrics.PurityByCanonical[id],
			run.Metrics.EntropyByCanonical[id],
			strings.Join(members[id], ", "),
		)
	}
	tw.Flush()
}

func printRunTable(w io.Writer, runs []*canon.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tCLUSTERS\tCOVERAGE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f%%\t%s\n",
			r.ID, r.Mode, r.Status, len(r.CanonicalIDs()), r.Metrics.Coverage*100,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func printAutoK(w io.Writer, res autok.Result) {
	fmt.Fprintf(w, "Selected k: %d (%s, range %d-%d)\n", res.SelectedK, res.Reason, res.MinK, res.MaxK)
	if res.Elbow != nil && len(res.Elbow.Series) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "K\tMERGE COST")
		for _, p := range res.Elbow.Series {
			marker := ""
			if p.K == res.Elbow.K {
				marker = "  <- elbow"
			}
			fmt.Fprintf(tw, "%d\t%.4f%s\n", p.K, p.Cost, marker)
		}
		tw.Flush()
	}
	if res.Gap != nil && len(res.Gap.Series) > 0 {
		fmt.Fprintf(w, "\nGap statistic (%d reference runs):\n", res.Gap.Runs)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "K\tGAP\tSTDDEV")
		for _, p := range res.Gap.Series {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\n", p.K, p.Gap, p.StdDev)
		}
		tw.Flush()
	}
}

func printCompare(w io.Writer, rows []compareRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tCLUSTERS\tCOVERAGE\tMEAN PURITY\tMEAN ENTROPY\tGAIN")
	for _, r := range rows {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\terror: %s\t\t\t\t\n", r.Mode, r.Error)
			continue
		}
		gain := "-"
		if r.AgreementGain != nil {
			gain = fmt.Sprintf("%.3f", *r.AgreementGain)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.3f\t%.3f\t%s\n",
			r.Mode, r.Clusters, r.Coverage*100, r.MeanPurity, r.MeanEntropy, gain)
	}
	tw.Flush()
}

func printConfig(w io.Writer, cfg config.ResolvedConfig) {
	fmt.Fprintf(w, "Config file: %s\n\n", cfg.ConfigPath)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, row := range []struct {
		key string
		v   config.ResolvedValue
	}{
		{"db_path", cfg.DBPath},
		{"default_mode", cfg.Mode},
		{"log_level", cfg.LogLevel},
	} {
		source := string(row.v.Source)
		if row.v.From != "" {
			source += " (" + row.v.From + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.key, row.v.Value, source)
	}
	fmt.Fprintf(tw, "auto_k.min_k\t%d\t\n", cfg.AutoK.MinK)
	fmt.Fprintf(tw, "auto_k.max_k\t%d\t\n", cfg.AutoK.MaxK)
	fmt.Fprintf(tw, "auto_k.gap\t%t\t\n", cfg.AutoK.Gap)
	fmt.Fprintf(tw, "matrix.normalize_within_plot_point\t%t\t\n", cfg.Matrix.NormalizeWithinPlotPoint)

	names := make([]string, 0, len(cfg.Matrix.CollaboratorWeights))
	for name := range cfg.Matrix.CollaboratorWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(tw, "matrix.collaborator_weights.%s\t%g\t\n", name, cfg.Matrix.CollaboratorWeights[name])
	}
	tw.Flush()
}
