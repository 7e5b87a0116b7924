package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corviddb/corvid/internal/exec"
	"github.com/corviddb/corvid/internal/lower"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/tracestore"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

// LowerOptions holds flags for the lower command.
type LowerOptions struct {
	QueryID     string
	PolicyPath  string
	TraceDBPath string
	Run         bool
	MemoryLimit int64
}

// LowerResult is the JSON payload for a successful lowering.
type LowerResult struct {
	FragmentID string                  `json:"fragment_id"`
	TraceID    string                  `json:"trace_id"`
	RootNodeID string                  `json:"root_node_id"`
	NodeCount  int                     `json:"node_count"`
	Nodes      []tracestore.NodeRecord `json:"nodes"`
	Rows       []map[string]string     `json:"rows,omitempty"`
}

// NewLowerCommand creates the lower command.
func NewLowerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowerOptions{}

	cmd := &cobra.Command{
		Use:   "lower <fragment.json>",
		Short: "Lower a plan fragment into a native operator tree",
		Long: `Lower a serialized plan fragment into a native operator tree.

Reads the fragment document, validates every node's declared schema
against what its operator computes, and prints the resulting tree.
Lowering is atomic: any defect anywhere in the fragment fails the whole
command and no tree is printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.QueryID, "query-id", "", "query id for audit records (defaults to the fragment id)")
	cmd.Flags().StringVar(&opts.PolicyPath, "policy", "", "stage boundary policy file (YAML)")
	cmd.Flags().StringVar(&opts.TraceDBPath, "trace-db", "", "record the lowering outcome to this SQLite database")
	cmd.Flags().BoolVar(&opts.Run, "run", false, "execute the lowered tree and print its rows")
	cmd.Flags().Int64Var(&opts.MemoryLimit, "memory-limit", memory.DefaultLimit, "allocation scope limit in bytes")

	return cmd
}

func runLower(rootOpts *RootOptions, opts *LowerOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	logLevel := slog.LevelWarn
	if rootOpts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})))

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read fragment", err)
	}

	frag, err := wire.Parse(data)
	if err != nil {
		formatter.Error(parseErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "parse fragment", err)
	}
	formatter.VerboseLog("Parsed fragment %s", frag.ID)

	// The wire codec's round-trip law holds for every supported node
	// kind; a violation here means a codec bug, not a bad document.
	if reserialized, rerr := wire.Serialize(frag); rerr == nil {
		if reparsed, perr := wire.Parse(reserialized); perr != nil || !reflect.DeepEqual(frag, reparsed) {
			slog.Warn("fragment does not round-trip", "fragment_id", frag.ID)
		}
	}

	policy, err := loadPolicy(opts.PolicyPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load boundary policy", err)
	}

	queryID := opts.QueryID
	if queryID == "" {
		queryID = frag.ID
	}
	scope := memory.NewScopeWithLimit("fragment:"+frag.ID, opts.MemoryLimit)
	ctx := exec.NewContext(queryID, frag.ID, scope)

	root, lowerErr := lower.NewConverter(ctx, policy).Lower(frag)

	if opts.TraceDBPath != "" {
		if err := recordOutcome(cmd, opts.TraceDBPath, ctx, root, lowerErr); err != nil {
			return WrapExitError(ExitCommandError, "record lowering", err)
		}
		formatter.VerboseLog("Recorded lowering %s", ctx.TraceID)
	}

	if lowerErr != nil {
		var le *lower.LoweringError
		code := "LOWERING"
		if errors.As(lowerErr, &le) {
			code = string(le.Code)
		}
		formatter.Error(code, lowerErr.Error(), nil)
		return WrapExitError(ExitFailure, "lower fragment", lowerErr)
	}

	rec, nodes := tracestore.Snapshot(ctx, root, nil)

	var rows []map[string]string
	if opts.Run {
		rows, err = runTree(ctx, root)
		if err != nil {
			formatter.Error("EXECUTION", err.Error(), nil)
			return WrapExitError(ExitFailure, "run fragment", err)
		}
	}

	if rootOpts.Format == "json" {
		return formatter.Success(LowerResult{
			FragmentID: frag.ID,
			TraceID:    rec.TraceID,
			RootNodeID: rec.RootNodeID,
			NodeCount:  rec.NodeCount,
			Nodes:      nodes,
			Rows:       rows,
		})
	}

	RenderTree(formatter.Writer, root)
	if opts.Run {
		printRows(formatter, root.OutputSchema(), rows)
	}
	return nil
}

func loadPolicy(path string) (lower.BoundaryPolicy, error) {
	if path == "" {
		return lower.NonePolicy{}, nil
	}
	return lower.LoadPolicy(path)
}

func recordOutcome(cmd *cobra.Command, dbPath string, ctx *exec.Context, root exec.Node, lowerErr error) error {
	st, err := tracestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, nodes := tracestore.Snapshot(ctx, root, lowerErr)
	return st.RecordLowering(cmd.Context(), rec, nodes)
}

// runTree executes the tree and formats each row as a name-to-value map
// keyed by the root's output column names.
func runTree(ctx *exec.Context, root exec.Node) ([]map[string]string, error) {
	batches, err := exec.Run(ctx, root)
	if err != nil {
		return nil, err
	}

	schema := root.OutputSchema()
	rows := []map[string]string{}
	for _, b := range batches {
		for r := 0; r < b.NumRows(); r++ {
			row := make(map[string]string, len(schema))
			for c := range schema {
				row[schema[c].Name] = vtype.Format(b.Column(c).Get(r))
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func printRows(f *OutputFormatter, schema vtype.Schema, rows []map[string]string) {
	names := schema.Names()
	fmt.Fprintln(f.Writer, strings.Join(names, "\t"))
	for _, row := range rows {
		vals := make([]string, len(names))
		for i, name := range names {
			vals[i] = row[name]
		}
		fmt.Fprintln(f.Writer, strings.Join(vals, "\t"))
	}
	fmt.Fprintf(f.Writer, "(%d rows)\n", len(rows))
}

func parseErrorCode(err error) string {
	if wire.IsSchemaError(err) {
		return "SCHEMA"
	}
	return "PARSE"
}
