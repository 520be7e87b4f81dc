package engine

import (
	"fmt"
	"io"
)

// CutStatistics collects node counts and how often each pruning mechanism
// fired during one search.
type CutStatistics struct {
	Nodes            uint64
	QNodes           uint64
	BetaCutoffs      uint64
	LMRReductions    uint64
	LMRResearches    uint64
	QStandPatCutoffs uint64
	QBetaCutoffs     uint64
}

func (c *CutStatistics) reset() {
	*c = CutStatistics{}
}

// Total is the number of main and quiescence nodes visited.
func (c *CutStatistics) Total() uint64 { return c.Nodes + c.QNodes }

func dumpCutStats(w io.Writer, c CutStatistics) {
	fmt.Fprintln(w, "info string Cut statistics:")
	fmt.Fprintf(w, "info string   Nodes: %d\n", c.Nodes)
	fmt.Fprintf(w, "info string   QNodes: %d\n", c.QNodes)
	fmt.Fprintf(w, "info string   Beta cutoffs: %d\n", c.BetaCutoffs)
	fmt.Fprintf(w, "info string   LMR reductions: %d\n", c.LMRReductions)
	fmt.Fprintf(w, "info string   LMR re-searches: %d\n", c.LMRResearches)
	fmt.Fprintf(w, "info string   QStandPat cutoffs: %d\n", c.QStandPatCutoffs)
	fmt.Fprintf(w, "info string   QBeta cutoffs: %d\n", c.QBetaCutoffs)
}
