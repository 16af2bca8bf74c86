// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package ilock implements the compatibility algebra for an "intention
// lock": a node in a containment tree may be held shared (S) or
// exclusive (X) by some set of workflows, and workflows traversing
// through a node on their way to a descendant register an intention to
// share (IS) or an intention for exclusive access (IX) at that node
// without taking the node's own S/X state.
//
// A node set to S or X implicitly covers its whole subtree, so every
// ancestor on the path to that node must first be set to IS or IX; the
// transition matrix below says which combinations may coexist at one
// node.
//
//	+---------------+----------+-----------+-----------+------------+------------+
//	|Request/Holding| Unlocked | Holding X | Holding S | Holding IX | Holding IS |
//	+---------------+----------+-----------+-----------+------------+------------+
//	|Request X      |   Yes    |    No     |    No     |     No     |     No     |
//	|Request S      |   Yes    |    No     |    Yes    |     No     |     Yes    |
//	|Request IX     |   Yes    |    No     |    No     |     Yes    |     Yes    |
//	|Request IS     |   Yes    |    No     |    Yes    |     Yes    |     Yes    |
//	+---------------+----------+-----------+-----------+------------+------------+
//
// The scheduler this package serves runs a single-threaded, re-entrant
// event loop rather than concurrent goroutines (see the engine
// package), so there is no blocking, condvar, or atomic CAS here: a
// request that is incompatible with the current holder counts simply
// stays pending until the scheduling sweep reconsiders it. Both the
// containment-tree nodes (locktree) and the flat per-device/per-dc
// lock objects (netobj) hold their four holder lists and expose a
// Counts value built from those lists; the engine's scheduling sweeps
// read its fields and Empty directly rather than calling the
// CompatibleWith* predicates.
package ilock

// Counts is the number of workflows holding a node in each of the four
// lock categories.
type Counts struct {
	Shared, Exclusive, IntentShared, IntentExclusive int
}

// CompatibleWithShared reports whether an S request may be granted
// given the counts already held.
func (c Counts) CompatibleWithShared() bool {
	return c.Exclusive == 0 && c.IntentExclusive == 0
}

// CompatibleWithExclusive reports whether an X request may be granted.
// X excludes every other holder, including other intention holders.
func (c Counts) CompatibleWithExclusive() bool {
	return c.Shared == 0 && c.Exclusive == 0 && c.IntentShared == 0 && c.IntentExclusive == 0
}

// CompatibleWithIntentShared reports whether an IS request may be
// granted given the counts already held.
func (c Counts) CompatibleWithIntentShared() bool {
	return c.Exclusive == 0
}

// CompatibleWithIntentExclusive reports whether an IX request may be
// granted given the counts already held.
func (c Counts) CompatibleWithIntentExclusive() bool {
	return c.Shared == 0 && c.Exclusive == 0
}

// Empty reports whether the node holds no lock or intent whatsoever,
// and is therefore a candidate for garbage collection.
func (c Counts) Empty() bool {
	return c.Shared == 0 && c.Exclusive == 0 && c.IntentShared == 0 && c.IntentExclusive == 0
}
