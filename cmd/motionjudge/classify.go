package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heungbuja/motionjudge/internal/app"
	"github.com/heungbuja/motionjudge/internal/classifier"
	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/seqio"
)

type classifyOptions struct {
	checkpoint string
	action     string
	code       int
	asJSON     bool
}

type classifyReport struct {
	Sequence          string             `json:"sequence"`
	ActionCode        int                `json:"actionCode"`
	Judgment          int                `json:"judgment"`
	PredictedLabel    string             `json:"predictedLabel"`
	Confidence        float64            `json:"confidence"`
	TargetProbability *float64           `json:"targetProbability"`
	Probabilities     map[string]float64 `json:"probabilities"`
}

func newClassifyCmd(c *cli) *cobra.Command {
	var opts classifyOptions
	cmd := &cobra.Command{
		Use:   "classify SEQUENCE",
		Short: "Run the classifier on a recorded pose sequence",
		Long: `Classify loads a sequence file (.npz or .json), runs the GCN-temporal
classifier on it and prints the predicted action. With --action or --code the
target probability is scored into a 0-3 judgment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.checkpoint == "" {
				opts.checkpoint = c.cfg.Model.Checkpoint
			}
			if opts.checkpoint == "" {
				return errors.New("no checkpoint: pass --checkpoint or set model.checkpoint")
			}
			var code *int
			if cmd.Flags().Changed("code") {
				code = &opts.code
			}

			report, err := runClassify(c, args[0], opts.checkpoint, opts.action, code)
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printClassify(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "classifier checkpoint (default: model.checkpoint)")
	cmd.Flags().StringVarP(&opts.action, "action", "a", "", "target action name")
	cmd.Flags().IntVar(&opts.code, "code", 0, "target action code")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runClassify(c *cli, path, checkpoint, name string, code *int) (*classifyReport, error) {
	model, err := classifier.Load(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	catalog, err := app.LoadCatalog(c.cfg)
	if err != nil {
		return nil, err
	}
	thresholds := c.cfg.JudgeThresholds()
	e, err := engine.New(engine.Config{
		Model:      model,
		Catalog:    catalog,
		Thresholds: &thresholds,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}

	seq, _, err := seqio.LoadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := e.ClassifyPoses(seq.Raw(), name, code)
	if err != nil {
		return nil, err
	}
	return &classifyReport{
		Sequence:          path,
		ActionCode:        res.ActionCode,
		Judgment:          res.Judgment,
		PredictedLabel:    res.PredictedLabel,
		Confidence:        res.Confidence,
		TargetProbability: res.TargetProbability,
		Probabilities:     res.Probabilities,
	}, nil
}

func printClassify(w io.Writer, r *classifyReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "sequence:\t%s\n", r.Sequence)
	fmt.Fprintf(tw, "predicted:\t%s (%.4f)\n", r.PredictedLabel, r.Confidence)
	if r.TargetProbability != nil {
		fmt.Fprintf(tw, "target probability:\t%.4f\n", *r.TargetProbability)
	}
	fmt.Fprintf(tw, "action code:\t%d\n", r.ActionCode)
	fmt.Fprintf(tw, "judgment:\t%d\n\n", r.Judgment)

	labels := make([]string, 0, len(r.Probabilities))
	for l := range r.Probabilities {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return r.Probabilities[labels[i]] > r.Probabilities[labels[j]]
	})
	fmt.Fprintln(tw, "LABEL\tPROBABILITY")
	for _, l := range labels {
		fmt.Fprintf(tw, "%s\t%.4f\n", l, r.Probabilities[l])
	}
	return tw.Flush()
}
