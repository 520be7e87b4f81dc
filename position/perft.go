package position

// Perft counts the leaf nodes of the legal move tree to the given depth.
func (p *Position) Perft(depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	moves := p.board.GenerateLegalMoves()
	if depth == 1 {
		return uint64(len(moves))
	}
	var nodes uint64
	for _, m := range moves {
		undo := p.board.Apply(m)
		nodes += p.Perft(depth - 1)
		undo()
	}
	return nodes
}

// Divide returns the perft count below each root move, keyed by UCI string.
func (p *Position) Divide(depth int) map[string]uint64 {
	out := make(map[string]uint64)
	for _, m := range p.LegalMoves(AllMoves) {
		p.Push(m)
		out[m.String()] = p.Perft(depth - 1)
		p.Pop()
	}
	return out
}
