package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corviddb/corvid/internal/tracestore"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	DBPath  string
	QueryID string
}

// TraceListResult is the JSON payload for a query listing.
type TraceListResult struct {
	QueryID   string              `json:"query_id"`
	Lowerings []tracestore.Record `json:"lowerings"`
}

// TraceGetResult is the JSON payload for a single lowering.
type TraceGetResult struct {
	Lowering tracestore.Record       `json:"lowering"`
	Nodes    []tracestore.NodeRecord `json:"nodes,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{}

	cmd := &cobra.Command{
		Use:   "trace [trace-id]",
		Short: "Inspect recorded lowering outcomes",
		Long: `Inspect lowering outcomes recorded by lower --trace-db.

With a trace id, prints that lowering and its operator rows. With
--query, lists every lowering recorded for the query id.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.QueryID == "" {
				return NewExitError(ExitCommandError, "a trace id argument or --query is required")
			}
			if len(args) == 1 && opts.QueryID != "" {
				return NewExitError(ExitCommandError, "a trace id argument and --query are mutually exclusive")
			}
			return runTrace(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to the trace database (required)")
	cmd.Flags().StringVar(&opts.QueryID, "query", "", "list lowerings for this query id")
	cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(rootOpts *RootOptions, opts *TraceOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	if _, err := os.Stat(opts.DBPath); err != nil {
		return WrapExitError(ExitCommandError, "trace database not found", err)
	}

	st, err := tracestore.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open trace database", err)
	}
	defer st.Close()

	if opts.QueryID != "" {
		return traceList(formatter, st, opts.QueryID, cmd)
	}
	return traceGet(formatter, st, args[0], cmd)
}

func traceList(f *OutputFormatter, st *tracestore.Store, queryID string, cmd *cobra.Command) error {
	recs, err := st.ListByQuery(cmd.Context(), queryID)
	if err != nil {
		return WrapExitError(ExitCommandError, "list lowerings", err)
	}

	if f.Format == "json" {
		return f.Success(TraceListResult{QueryID: queryID, Lowerings: recs})
	}

	if len(recs) == 0 {
		fmt.Fprintf(f.Writer, "No lowerings recorded for query %s\n", queryID)
		return nil
	}
	for _, rec := range recs {
		line := fmt.Sprintf("%s  %s  fragment=%s  nodes=%d",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.TraceID, rec.FragmentID, rec.NodeCount)
		if rec.Status == tracestore.StatusFailed {
			line += "  FAILED[" + rec.ErrorCode + "]"
		}
		fmt.Fprintln(f.Writer, line)
	}
	return nil
}

func traceGet(f *OutputFormatter, st *tracestore.Store, traceID string, cmd *cobra.Command) error {
	rec, nodes, err := st.Get(cmd.Context(), traceID)
	if errors.Is(err, tracestore.ErrNotFound) {
		return WrapExitError(ExitFailure, "no such lowering", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "read lowering", err)
	}

	if f.Format == "json" {
		return f.Success(TraceGetResult{Lowering: rec, Nodes: nodes})
	}

	fmt.Fprintf(f.Writer, "Trace:    %s\n", rec.TraceID)
	fmt.Fprintf(f.Writer, "Query:    %s\n", rec.QueryID)
	fmt.Fprintf(f.Writer, "Fragment: %s\n", rec.FragmentID)
	fmt.Fprintf(f.Writer, "Status:   %s\n", rec.Status)
	if rec.Status == tracestore.StatusFailed {
		fmt.Fprintf(f.Writer, "Error:    [%s] %s\n", rec.ErrorCode, rec.Error)
		return nil
	}
	fmt.Fprintf(f.Writer, "Nodes:    %d\n", rec.NodeCount)
	for _, n := range nodes {
		fmt.Fprintf(f.Writer, "  %s%s [%s]\n", strings.Repeat("  ", n.Depth), n.Kind, n.NodeID)
	}
	return nil
}
