package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heungbuja/motionjudge/internal/matcher"
	"github.com/heungbuja/motionjudge/internal/reference"
	"github.com/heungbuja/motionjudge/internal/seqio"
)

type compareOptions struct {
	refs    string
	actions []string
	topK    int
	asJSON  bool
}

type compareMatch struct {
	Action     string  `json:"action"`
	Person     string  `json:"person"`
	SequenceID int     `json:"sequenceId"`
	Path       string  `json:"path"`
	Distance   float64 `json:"distance"`
	Cosine     float64 `json:"cosine"`
}

type compareSummary struct {
	Action   string  `json:"action"`
	Distance float64 `json:"distance"`
	Cosine   float64 `json:"cosine"`
	Count    int     `json:"count"`
}

type compareReport struct {
	Query   string           `json:"query"`
	Matches []compareMatch   `json:"matches"`
	Summary []compareSummary `json:"summary"`
}

func newCompareCmd(c *cli) *cobra.Command {
	var opts compareOptions
	cmd := &cobra.Command{
		Use:   "compare QUERY",
		Short: "Rank reference sequences by similarity to a query sequence",
		Long: `Compare loads a query sequence (.npz or .json) and every reference under
the reference directory, then prints the closest references and the mean
distance and cosine similarity per action.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxDistance, err := floatFlag(cmd, "max-distance")
			if err != nil {
				return err
			}
			minCosine, err := floatFlag(cmd, "min-cosine")
			if err != nil {
				return err
			}
			if opts.refs == "" {
				opts.refs = c.cfg.References.Dir
			}
			if opts.refs == "" {
				return errors.New("no reference directory: pass --refs or set references.dir")
			}

			report, err := runCompare(args[0], opts, maxDistance, minCosine)
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printCompare(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&opts.refs, "refs", "", "reference directory (default: references.dir)")
	cmd.Flags().StringSliceVar(&opts.actions, "actions", nil, "only compare against these actions")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 5, "number of closest references to print")
	cmd.Flags().Float64("max-distance", 0, "drop references farther than this distance")
	cmd.Flags().Float64("min-cosine", 0, "drop references below this cosine similarity")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runCompare(query string, opts compareOptions, maxDistance, minCosine *float64) (*compareReport, error) {
	if opts.topK <= 0 {
		return nil, fmt.Errorf("--top-k must be positive, got %d", opts.topK)
	}
	seq, _, err := seqio.LoadFile(query)
	if err != nil {
		return nil, err
	}
	refs, err := reference.LoadDir(opts.refs, opts.actions)
	if err != nil {
		return nil, err
	}

	evals, err := matcher.EvaluateQuery(seq, refs)
	if err != nil {
		return nil, err
	}
	evals = matcher.Filter(evals, maxDistance, minCosine)

	report := &compareReport{Query: query, Matches: []compareMatch{}, Summary: []compareSummary{}}
	for i, e := range evals {
		if i == opts.topK {
			break
		}
		path := e.Reference.Path
		if rel, err := filepath.Rel(opts.refs, path); err == nil {
			path = rel
		}
		report.Matches = append(report.Matches, compareMatch{
			Action:     e.Reference.Action,
			Person:     e.Reference.Person,
			SequenceID: e.Reference.SequenceID,
			Path:       path,
			Distance:   e.Distance,
			Cosine:     e.Cosine,
		})
	}
	for _, s := range matcher.SummarizeByAction(evals) {
		report.Summary = append(report.Summary, compareSummary(s))
	}
	return report, nil
}

func printCompare(w io.Writer, r *compareReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "query: %s\n\n", r.Query)
	if len(r.Matches) == 0 {
		fmt.Fprintln(tw, "no references within thresholds")
		return tw.Flush()
	}

	fmt.Fprintln(tw, "RANK\tACTION\tPERSON\tSEQ\tDISTANCE\tCOSINE\tPATH")
	for i, m := range r.Matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.4f\t%.4f\t%s\n",
			i+1, m.Action, m.Person, m.SequenceID, m.Distance, m.Cosine, m.Path)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ACTION\tMEAN DISTANCE\tMEAN COSINE\tREFERENCES")
	for _, s := range r.Summary {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%d\n", s.Action, s.Distance, s.Cosine, s.Count)
	}
	return tw.Flush()
}
