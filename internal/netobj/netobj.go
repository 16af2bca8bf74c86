// Package netobj implements the flat, one-lock-per-device (or
// per-datacenter) granularity used by the dev_fifo/dev_depset/dc_fifo/
// dc_depset baseline schedulers, as an alternative to locktree's
// containment tree. There is no splitting or hierarchy here: each
// named device or datacenter gets exactly one NetObj, created the
// first time a workflow touches it and garbage-collected the moment
// nothing holds or intends a lock on it. Compatibility is decided by
// the same ilock.Counts algebra locktree uses.
package netobj

import (
	"sort"

	"github.com/occam-sim/occam/internal/ids"
	"github.com/occam-sim/occam/internal/ilock"
)

// NetObj is one device's or one datacenter's lock state.
type NetObj struct {
	ID    ids.NodeID
	Name  string
	Locks [ids.NumCategories][]ids.WorkflowID
}

func (n *NetObj) Counts() ilock.Counts {
	return ilock.Counts{
		Shared:          len(n.Locks[ids.Shared]),
		Exclusive:       len(n.Locks[ids.Exclusive]),
		IntentShared:    len(n.Locks[ids.IntentShared]),
		IntentExclusive: len(n.Locks[ids.IntentExclusive]),
	}
}

// Table owns every NetObj for a run, keyed by name, and hands out
// fresh IDs.
type Table struct {
	byName map[string]*NetObj
	nextID ids.NodeID
}

// NewTable returns an empty NetObj table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*NetObj)}
}

// GetOrCreate returns the NetObj for name, creating an empty one if
// this is the first time it has been referenced.
func (t *Table) GetOrCreate(name string) *NetObj {
	if obj, ok := t.byName[name]; ok {
		return obj
	}
	t.nextID++
	obj := &NetObj{ID: t.nextID, Name: name}
	t.byName[name] = obj
	return obj
}

// Grant registers wfID as holding category against obj.
func (t *Table) Grant(obj *NetObj, wfID ids.WorkflowID, category ids.Category) {
	obj.Locks[category] = append(obj.Locks[category], wfID)
}

// Release removes wfID from obj's category list and deletes obj from
// the table if it is now empty in every category.
func (t *Table) Release(obj *NetObj, wfID ids.WorkflowID, category ids.Category) {
	list := obj.Locks[category]
	for i, id := range list {
		if id == wfID {
			obj.Locks[category] = append(list[:i], list[i+1:]...)
			break
		}
	}
	t.DeleteIfPossible(obj)
}

// DeleteIfPossible removes obj from the table if it holds no lock or
// intent in any category, reporting whether it did so.
func (t *Table) DeleteIfPossible(obj *NetObj) bool {
	if !obj.Counts().Empty() {
		return false
	}
	delete(t.byName, obj.Name)
	return true
}

// All returns every live NetObj in the table, ordered by ID (creation
// order) so a scheduling sweep visits NetObjs deterministically.
func (t *Table) All() []*NetObj {
	out := make([]*NetObj, 0, len(t.byName))
	for _, obj := range t.byName {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many NetObjs are currently live.
func (t *Table) Len() int { return len(t.byName) }
