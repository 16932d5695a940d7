package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

var (
	classifyColumn   string
	classifyProvider string
	classifyTaxonomy string
	classifyGuide    string
	classifyFormat   string
	classifyOutput   string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file.csv>",
	Short: "Classify one CSV column and print the bucket tree",
	Long: `Uploads the CSV, then buckets every row by the selected column and waits for the result.

The taxonomy comes from --taxonomy (a YAML list of {name, description, children}).
Without it the provider proposes one, which is accepted as is. With provider "none"
and no taxonomy, rows are grouped by their most frequent values.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyColumn, "column", "", "Column to classify (required)")
	classifyCmd.Flags().StringVar(&classifyProvider, "provider", "", "openai, claude, gemini or none (default: ai.default_provider)")
	classifyCmd.Flags().StringVar(&classifyTaxonomy, "taxonomy", "", "YAML taxonomy file")
	classifyCmd.Flags().StringVar(&classifyGuide, "guide", "", "Free-text guidance for the taxonomy proposal")
	classifyCmd.Flags().StringVar(&classifyFormat, "format", "yaml", "Output format: yaml or json")
	classifyCmd.Flags().StringVarP(&classifyOutput, "output", "o", "", "Write the result to a file instead of stdout")
	_ = classifyCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	if classifyFormat != "yaml" && classifyFormat != "json" {
		return fmt.Errorf("--format must be yaml or json")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider := cfg.AI.DefaultAIProvider()
	if classifyProvider != "" {
		p, ok := models.ParseAIProvider(classifyProvider)
		if !ok {
			return fmt.Errorf("unknown provider %q", classifyProvider)
		}
		provider = p
	}

	var taxonomy []models.TaxonomyNode
	if classifyTaxonomy != "" {
		if taxonomy, err = loadTaxonomy(classifyTaxonomy); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := classifyFile(ctx, a, args[0], provider, taxonomy, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if classifyOutput != "" {
		f, err := os.Create(classifyOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return renderResult(out, result, classifyFormat)
}

// classifyFile runs the whole upload, propose and finalize flow in-process.
func classifyFile(ctx context.Context, a *app, path string, provider models.AIProvider, taxonomy []models.TaxonomyNode, progress io.Writer) (*models.AnalysisResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	wb, err := a.workbooks.Upload(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return nil, err
	}
	a.logger.Info("Uploaded workbook",
		zap.String("workbook_id", wb.ID.String()),
		zap.Int("rows", wb.RowCount))

	runner := services.NewClassificationRunner(a.workbooks, a.jobRepo, a.analysisRepo, a.classifiers,
		progressPrinter{w: progress}, a.cfg.Classification, a.logger)
	inline := &inlineQueue{runner: runner}
	analysis := services.NewAnalysisService(a.workbooks, a.jobRepo, a.analysisRepo, a.classifiers, inline, a.cfg.Classification, a.logger)

	var uniqueValues map[string]int
	if len(taxonomy) == 0 {
		proposal, err := analysis.Propose(ctx, services.ProposeInput{
			WorkbookID: wb.ID,
			Column:     classifyColumn,
			Provider:   provider,
			Guide:      classifyGuide,
		})
		if err != nil {
			return nil, err
		}
		if proposal.Result != nil {
			return proposal.Result, nil
		}
		taxonomy = proposal.Proposal
		uniqueValues = proposal.UniqueValues
	}

	job, err := analysis.Finalize(ctx, services.FinalizeInput{
		WorkbookID:   wb.ID,
		Column:       classifyColumn,
		Taxonomy:     taxonomy,
		UniqueValues: uniqueValues,
		Provider:     provider,
	})
	if err != nil {
		return nil, err
	}

	job, err = a.jobRepo.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted || job.ResultID == nil {
		return nil, fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Message)
	}
	return a.analysisRepo.GetByID(ctx, *job.ResultID)
}

// inlineQueue runs each request as soon as it is enqueued. The runner
// records failures on the job itself, so they are not returned here.
type inlineQueue struct {
	runner *services.ClassificationRunner
}

var _ queue.JobQueue = (*inlineQueue)(nil)

func (q *inlineQueue) Enqueue(ctx context.Context, req *models.ClassificationRequest) error {
	_ = q.runner.Run(ctx, req)
	return nil
}

func (q *inlineQueue) Dequeue(context.Context) (*models.ClassificationRequest, error) {
	return nil, queue.ErrClosed
}

func (q *inlineQueue) Close() error { return nil }

// progressPrinter writes one line per progress event.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Publish(_ context.Context, e models.ProgressEvent) error {
	_, err := fmt.Fprintf(p.w, "[%3d%%] %-10s %s\n", e.Progress, e.Status, e.Message)
	return err
}

func loadTaxonomy(path string) ([]models.TaxonomyNode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var nodes []models.TaxonomyNode
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	if len(nodes) == 0 {
		return nil, errors.New("taxonomy file has no buckets")
	}
	return nodes, nil
}

// bucketView is the printed shape of a bucket: row indices are left out.
type bucketView struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Rows     int           `json:"rows" yaml:"rows"`
	Children []*bucketView `json:"children,omitempty" yaml:"children,omitempty"`
}

type resultView struct {
	AnalysisID   string        `json:"analysisId" yaml:"analysisId"`
	WorkbookID   string        `json:"workbookId" yaml:"workbookId"`
	Column       string        `json:"column" yaml:"column"`
	TotalRows    int           `json:"totalRows" yaml:"totalRows"`
	UniqueValues int           `json:"uniqueValues" yaml:"uniqueValues"`
	EmptyCount   int           `json:"emptyCount" yaml:"emptyCount"`
	Buckets      []*bucketView `json:"buckets" yaml:"buckets"`
}

func viewOf(nodes []*models.BucketNode) []*bucketView {
	out := make([]*bucketView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &bucketView{ID: n.ID, Name: n.Name, Rows: n.RowCount, Children: viewOf(n.Children)})
	}
	return out
}

func renderResult(w io.Writer, result *models.AnalysisResult, format string) error {
	view := resultView{
		AnalysisID:   result.ID.String(),
		WorkbookID:   result.WorkbookID.String(),
		Column:       result.SelectedColumn,
		TotalRows:    result.Stats.TotalRows,
		UniqueValues: result.Stats.UniqueValues,
		EmptyCount:   result.Stats.EmptyCount,
		Buckets:      viewOf(result.RootBuckets),
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
