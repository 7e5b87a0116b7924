package cli

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/spf13/cobra"

	"github.com/corviddb/corvid/internal/wire"
)

//go:embed schema.cue
var fragmentSchemaCUE string

// ValidationIssue is one validation finding.
type ValidationIssue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <fragment.json>",
		Short: "Validate a fragment document without lowering it",
		Long: `Validate a plan fragment document without lowering it.

Checks the document's structure against the fragment schema and then
runs the full deserializer. Faster feedback than lower for malformed
documents, and safe to run without an allocation scope.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read fragment", err)
	}

	issues := validateStructure(path, data)
	if len(issues) == 0 {
		// The structural pass accepts; the deserializer has the final
		// word on literals and declared types.
		if _, err := wire.Parse(data); err != nil {
			issues = append(issues, ValidationIssue{Message: err.Error()})
		}
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, issues)
	}
	return outputValidateSuccess(formatter)
}

// validateStructure checks the document against the embedded fragment
// schema.
func validateStructure(filename string, data []byte) []ValidationIssue {
	ctx := cuecontext.New()

	schema := ctx.CompileString(fragmentSchemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationIssue{{Message: fmt.Sprintf("internal schema error: %v", err)}}
	}
	fragment := schema.LookupPath(cue.ParsePath("#Fragment"))
	if err := fragment.Err(); err != nil {
		return []ValidationIssue{{Message: fmt.Sprintf("internal schema error: %v", err)}}
	}

	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return []ValidationIssue{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return []ValidationIssue{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	unified := fragment.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var issues []ValidationIssue
		for _, e := range cueerrors.Errors(err) {
			issues = append(issues, ValidationIssue{
				Path:    strings.Join(cueerrors.Path(e), "."),
				Message: e.Error(),
			})
		}
		return issues
	}
	return nil
}

func outputValidationErrors(f *OutputFormatter, issues []ValidationIssue) error {
	if f.Format == "json" {
		f.Success(ValidationResult{Valid: false, Errors: issues})
		return NewExitError(ExitFailure, "fragment is invalid")
	}

	fmt.Fprintf(f.Writer, "Invalid: %d issue(s)\n", len(issues))
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Fprintf(f.Writer, "  %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(f.Writer, "  %s\n", issue.Message)
		}
	}
	return NewExitError(ExitFailure, "fragment is invalid")
}

func outputValidateSuccess(f *OutputFormatter) error {
	if f.Format == "json" {
		return f.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(f.Writer, "Valid")
	return nil
}
