package lower

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/corviddb/corvid/internal/exec"
	"github.com/corviddb/corvid/internal/wire"
)

// Boundary describes one synthesized stage boundary: the exchange to
// insert between a parent and a child that the wire tree does not carry
// at that position.
type Boundary struct {
	// ID is the synthesized node's id. Real wire ids pass through
	// lowering untouched; only synthesized nodes get ids from here.
	ID string

	// Partitioning is the redistribution applied at the boundary.
	Partitioning exec.Partitioning
}

// BoundaryPolicy decides where stage boundaries are synthesized. The
// observed protocol shows a single insertion site, so the trigger rule
// is deliberately pluggable rather than hard-coded into node lowering.
type BoundaryPolicy interface {
	// Boundary reports the exchange to insert between parent and child,
	// if any. It runs after the child is lowered and before the parent
	// consumes it.
	Boundary(frag *wire.Fragment, parent, child wire.PlanNode) (Boundary, bool)
}

// NonePolicy never synthesizes a boundary. Lowering under it preserves
// the wire tree's shape exactly.
type NonePolicy struct{}

// Boundary implements BoundaryPolicy.
func (NonePolicy) Boundary(*wire.Fragment, wire.PlanNode, wire.PlanNode) (Boundary, bool) {
	return Boundary{}, false
}

// StagePolicy synthesizes a gather exchange wherever the fragment's
// stage assignments place a parent and child in different stages and
// neither side is already an exchange.
type StagePolicy struct{}

// Boundary implements BoundaryPolicy.
func (StagePolicy) Boundary(frag *wire.Fragment, parent, child wire.PlanNode) (Boundary, bool) {
	if frag == nil || len(frag.StageAssignments) == 0 {
		return Boundary{}, false
	}
	parentStage, ok := frag.StageAssignments[parent.NodeID()]
	if !ok {
		return Boundary{}, false
	}
	childStage, ok := frag.StageAssignments[child.NodeID()]
	if !ok || parentStage == childStage {
		return Boundary{}, false
	}
	if _, isExchange := parent.(*wire.ExchangeNode); isExchange {
		return Boundary{}, false
	}
	if _, isExchange := child.(*wire.ExchangeNode); isExchange {
		return Boundary{}, false
	}
	return Boundary{
		ID:           "boundary:" + child.NodeID(),
		Partitioning: exec.Partitioning{Func: exec.PartitionGather},
	}, true
}

// policyConfig is the YAML form of a boundary policy selection.
type policyConfig struct {
	Mode string `yaml:"mode"`
}

// Policy modes accepted in configuration files.
const (
	PolicyModeNone          = "none"
	PolicyModeStageBoundary = "stage-boundary"
)

// ReadPolicy decodes a boundary policy selection from YAML.
func ReadPolicy(r io.Reader) (BoundaryPolicy, error) {
	var cfg policyConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode boundary policy: %w", err)
	}
	switch cfg.Mode {
	case PolicyModeNone, "":
		return NonePolicy{}, nil
	case PolicyModeStageBoundary:
		return StagePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown boundary policy mode %q", cfg.Mode)
	}
}

// LoadPolicy reads a boundary policy selection from a YAML file.
func LoadPolicy(path string) (BoundaryPolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open boundary policy: %w", err)
	}
	defer f.Close()
	return ReadPolicy(f)
}
