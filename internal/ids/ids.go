// Package ids defines the small numeric identifiers that let the lock
// tree and the workflow table reference each other without importing
// one another. Both sides keep a four-way split of holders indexed by
// Category; a node's Category-indexed workflow lists and a workflow's
// Category-indexed node lists are kept as mirror images of each other
// by the engine package.
package ids

// NodeID names a node in the containment tree or a flat per-device/
// per-datacenter lock object in the baseline schedulers.
type NodeID int64

// WorkflowID names a Workflow in the engine's workflow table.
type WorkflowID int64

// Category is one of the four intention-lock categories a workflow can
// hold or intend against a node.
type Category int

const (
	Shared Category = iota
	Exclusive
	IntentShared
	IntentExclusive
	NumCategories
)

func (c Category) String() string {
	switch c {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	case IntentShared:
		return "intent_shared"
	case IntentExclusive:
		return "intent_exclusive"
	default:
		return "unknown"
	}
}
