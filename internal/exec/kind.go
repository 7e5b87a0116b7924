package exec

// KindName returns the wire-level kind discriminator for an operator.
func KindName(n Node) string {
	switch n.(type) {
	case *ValuesNode:
		return "values"
	case *ProjectNode:
		return "project"
	case *FilterNode:
		return "filter"
	case *OutputNode:
		return "output"
	case *ExchangeNode:
		return "exchange"
	case *SemiJoinNode:
		return "semijoin"
	case *MergeJoinNode:
		return "mergejoin"
	default:
		return "unknown"
	}
}
