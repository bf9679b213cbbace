package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/threatlens/internal/app"
	"github.com/jmerrifield20/threatlens/internal/config"
	"github.com/jmerrifield20/threatlens/internal/modelfile"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// analyzer is satisfied by the HTTP client and by the in-process service.
type analyzer interface {
	Analyze(ctx context.Context, req *tm.Request) (*tm.Response, error)
}

type localAnalyzer struct{ a *app.App }

func (l localAnalyzer) Analyze(ctx context.Context, req *tm.Request) (*tm.Response, error) {
	return l.a.Service.AnalyzeThreatModel(ctx, req, "")
}

// analysisRow is the outcome of analyzing one file.
type analysisRow struct {
	path string
	resp *tm.Response
	err  error
}

var (
	analyzeFormat      string
	analyzeMethodology string
	analyzeFailOn      string
	analyzeParallel    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <model.yaml|model.json> [more files...]",
	Short: "Analyze one or more threat model files",
	Long: `analyze loads threat models from YAML or JSON files and prints the
identified threats, the risk assessment and the recommended mitigations.

Multiple files are analyzed concurrently. --fail-on makes the command exit
non-zero when any model reaches the given risk level, for use in CI:

  threatctl analyze --fail-on high services/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "o", "text", "Output format: text, json or yaml")
	analyzeCmd.Flags().StringVarP(&analyzeMethodology, "methodology", "m", "", "Override the methodology of every model (stride, pasta)")
	analyzeCmd.Flags().StringVar(&analyzeFailOn, "fail-on", "", "Exit non-zero at this risk level or above (low, medium, high, very_high, critical)")
	analyzeCmd.Flags().IntVar(&analyzeParallel, "parallel", 4, "Maximum concurrent analyses")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var failOn tm.RiskLevel
	if analyzeFailOn != "" {
		failOn = tm.RiskLevel(strings.ToLower(analyzeFailOn))
		if failOn.Rank() == 0 {
			return fmt.Errorf("unknown --fail-on level %q", analyzeFailOn)
		}
	}
	if analyzeFormat != "text" {
		if _, err := modelfile.ParseFormat(analyzeFormat); err != nil {
			return err
		}
	}

	// Load and validate every file before starting any analysis.
	reqs := make([]*tm.Request, len(args))
	for i, path := range args {
		req, err := modelfile.LoadFile(path)
		if err != nil {
			return err
		}
		if analyzeMethodology != "" {
			req.Methodology = tm.Methodology(strings.ToLower(analyzeMethodology))
		}
		reqs[i] = req
	}

	ctx := cmd.Context()
	an, closeFn, err := newAnalyzer(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rows := analyzeAll(ctx, an, args, reqs, analyzeParallel)

	out := cmd.OutOrStdout()
	if analyzeFormat == "text" {
		if err := printAnalysisText(out, rows); err != nil {
			return err
		}
	} else if err := printAnalysisStructured(out, rows, analyzeFormat); err != nil {
		return err
	}

	failed := 0
	for _, r := range rows {
		if r.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(rows))
	}
	if failOn != "" {
		if over := exceeding(rows, failOn); len(over) > 0 {
			return fmt.Errorf("risk at or above %s in: %s", failOn, strings.Join(over, ", "))
		}
	}
	return nil
}

func newAnalyzer(ctx context.Context) (analyzer, func(), error) {
	if remote() {
		c, err := newClient()
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return localAnalyzer{a}, func() {
		a.Close() //nolint:errcheck
		logger.Sync() //nolint:errcheck
	}, nil
}

// analyzeAll runs the requests with at most parallel in flight and returns
// rows in input order. Individual failures are recorded in their row.
func analyzeAll(ctx context.Context, an analyzer, paths []string, reqs []*tm.Request, parallel int) []analysisRow {
	rows := make([]analysisRow, len(reqs))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i := range reqs {
		g.Go(func() error {
			resp, err := an.Analyze(ctx, reqs[i])
			rows[i] = analysisRow{path: paths[i], resp: resp, err: err}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return rows
}

// exceeding lists the files whose overall risk is at least level.
func exceeding(rows []analysisRow, level tm.RiskLevel) []string {
	var out []string
	for _, r := range rows {
		if r.resp != nil && r.resp.RiskAssessment.RiskLevel.Rank() >= level.Rank() {
			out = append(out, r.path)
		}
	}
	return out
}

func printAnalysisStructured(w io.Writer, rows []analysisRow, format string) error {
	f, err := modelfile.ParseFormat(format)
	if err != nil {
		return err
	}
	type structuredRow struct {
		File   string       `json:"file"`
		Result *tm.Response `json:"result,omitempty"`
		Error  string       `json:"error,omitempty"`
	}
	out := make([]structuredRow, len(rows))
	for i, r := range rows {
		out[i] = structuredRow{File: r.path, Result: r.resp}
		if r.err != nil {
			out[i].Error = r.err.Error()
		}
	}
	// Single result: unwrap for convenience.
	if len(out) == 1 && out[0].Error == "" {
		return modelfile.Write(w, out[0].Result, f)
	}
	return modelfile.Write(w, out, f)
}

func printAnalysisText(w io.Writer, rows []analysisRow) error {
	for i, r := range rows {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if r.err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", r.path, r.err)
			continue
		}
		if err := printResponseText(w, r.path, r.resp); err != nil {
			return err
		}
	}
	return nil
}

func printResponseText(w io.Writer, path string, resp *tm.Response) error {
	ra := resp.RiskAssessment
	fmt.Fprintf(w, "File:        %s\n", path)
	fmt.Fprintf(w, "Model:       %s (%s)\n", resp.ThreatModelID, resp.Methodology)
	fmt.Fprintf(w, "Risk:        %s (%.1f)\n", ra.RiskLevel, ra.OverallRiskScore)
	fmt.Fprintf(w, "Confidence:  %.2f\n", resp.Confidence)
	fmt.Fprintf(w, "Threats:     %d\n", len(resp.Threats))
	if len(ra.RiskFactors) > 0 {
		fmt.Fprintf(w, "Factors:     %s\n", strings.Join(ra.RiskFactors, "; "))
	}

	threats := append([]tm.IdentifiedThreat(nil), resp.Threats...)
	sort.SliceStable(threats, func(i, j int) bool { return threats[i].RiskScore > threats[j].RiskScore })

	if len(threats) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEVERITY\tSCORE\tCATEGORY\tTHREAT\tCOMPONENTS")
		for _, t := range threats {
			fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\n",
				t.Severity, t.RiskScore, t.Category, t.Title, strings.Join(t.AffectedComponents, ","))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(resp.MitigationRecommendations) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PRIORITY\tMITIGATION\tTHREATS")
		for _, m := range resp.MitigationRecommendations {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", m.Priority, m.Title, len(m.ThreatIDs))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
