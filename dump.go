package workqueue

import (
	"fmt"
	"strings"
)

// DumpStatus describes every queued item, system lane first:
//
//	System Queue:
//	  <item>
//	Main Queue:
//	  <item>
//
// Lanes are not mutated. Under concurrent use the result is a
// best-effort snapshot.
func (q *PriorityWorkQueue) DumpStatus() string {
	var b strings.Builder
	for _, l := range [...]*lane{q.system, q.main} {
		fmt.Fprintf(&b, "%s Queue:\n", l.name)
		for _, desc := range l.snapshot() {
			fmt.Fprintf(&b, "  %s\n", desc)
		}
	}
	return b.String()
}
