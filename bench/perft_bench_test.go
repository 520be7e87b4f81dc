package bench

import (
	"context"
	"testing"

	"movemate/engine"
	"movemate/position"
)

func benchPerft(b *testing.B, fen string, depth int) {
	p := mustFEN(b, fen)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Perft(depth)
	}
}

func BenchmarkPerft_Initial_D4(b *testing.B) {
	benchPerft(b, position.StartFEN, 4)
}

func BenchmarkPerft_Kiwipete_D3(b *testing.B) {
	benchPerft(b, kiwipete, 3)
}

func benchSearch(b *testing.B, fen string, depth int) {
	s := engine.NewSearcher(engine.SearchOptions{MaxDepth: depth})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := mustFEN(b, fen)
		_ = s.Search(context.Background(), p, nil)
	}
}

func BenchmarkSearch_Initial_D3(b *testing.B) {
	benchSearch(b, position.StartFEN, 3)
}

func BenchmarkSearch_Kiwipete_D2(b *testing.B) {
	benchSearch(b, kiwipete, 2)
}
