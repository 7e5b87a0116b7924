package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/corviddb/corvid/internal/exec"
)

var (
	kindColor   = color.New(color.FgCyan, color.Bold)
	idColor     = color.New(color.FgYellow)
	detailColor = color.New(color.Faint)
)

// RenderTree writes an indented rendering of an operator tree, one
// operator per line, children under their parent.
func RenderTree(w io.Writer, root exec.Node) {
	renderNode(w, root, 0)
}

func renderNode(w io.Writer, n exec.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s [%s] %s\n",
		indent,
		kindColor.Sprint(exec.KindName(n)),
		idColor.Sprint(n.ID()),
		detailColor.Sprint(n.OutputSchema().String()))

	if d := nodeDetail(n); d != "" {
		fmt.Fprintf(w, "%s  %s\n", indent, detailColor.Sprint(d))
	}

	for _, src := range n.Sources() {
		renderNode(w, src, depth+1)
	}
}

func nodeDetail(n exec.Node) string {
	switch node := n.(type) {
	case *exec.ValuesNode:
		var rows int
		for _, b := range node.Batches {
			rows += b.NumRows()
		}
		return fmt.Sprintf("rows: %d", rows)
	case *exec.ProjectNode:
		parts := make([]string, len(node.Exprs))
		for i, e := range node.Exprs {
			parts[i] = e.String()
		}
		return "exprs: " + strings.Join(parts, ", ")
	case *exec.FilterNode:
		return "predicate: " + node.Predicate.String()
	case *exec.OutputNode:
		return "names: " + strings.Join(node.ColumnNames, ", ")
	case *exec.ExchangeNode:
		return "partitioning: " + node.Partitioning.Func.String()
	case *exec.SemiJoinNode:
		return fmt.Sprintf("probe key: %d, build key: %d", node.ProbeKey, node.BuildKey)
	case *exec.MergeJoinNode:
		return fmt.Sprintf("keys: %v = %v", node.LeftKeys, node.RightKeys)
	default:
		return ""
	}
}
