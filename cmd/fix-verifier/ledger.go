package main

import (
	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
)

// ledger folds order events into logical orders. Every client order id of a
// cancel/replace chain maps to the id the chain started with.
type ledger struct {
	root      map[string]string
	terminals map[string]int
	execs     map[string]int
	seen      map[string]struct{}

	events     int
	redelivers int
}

func newLedger() *ledger {
	return &ledger{
		root:      make(map[string]string),
		terminals: make(map[string]int),
		execs:     make(map[string]int),
		seen:      make(map[string]struct{}),
	}
}

func (l *ledger) resolve(id string) string {
	if r, ok := l.root[id]; ok {
		return r
	}
	return id
}

// add records one event. Redelivery of an event id already seen is counted
// but not folded again.
func (l *ledger) add(ev msg.OrderEventMsg) {
	l.events++
	if _, dup := l.seen[ev.EventID]; dup {
		l.redelivers++
		return
	}
	l.seen[ev.EventID] = struct{}{}

	r := l.resolve(ev.ClOrdID)
	if ev.PreviousClOrdID != "" {
		r = l.resolve(ev.PreviousClOrdID)
	}
	l.root[ev.ClOrdID] = r

	if ev.ExecID != "" {
		l.execs[ev.ExecID]++
	}
	if terminalTransition(ev) {
		l.terminals[r]++
	}
}

func terminalTransition(ev msg.OrderEventMsg) bool {
	switch ev.Event {
	case "CANCELLED", "REJECTED":
		return true
	case "FILL":
		return ev.Status == "FILLED"
	}
	return false
}

// orders returns the number of logical orders seen
func (l *ledger) orders() int {
	roots := make(map[string]struct{})
	for _, r := range l.root {
		roots[r] = struct{}{}
	}
	return len(roots)
}

// duplicateTerminals returns logical orders that reached a terminal state
// more than once
func (l *ledger) duplicateTerminals() map[string]int {
	out := make(map[string]int)
	for r, n := range l.terminals {
		if n > 1 {
			out[r] = n
		}
	}
	return out
}

// duplicateExecs returns execution ids applied more than once
func (l *ledger) duplicateExecs() map[string]int {
	out := make(map[string]int)
	for id, n := range l.execs {
		if n > 1 {
			out[id] = n
		}
	}
	return out
}
