package narrative

import "Inkbound/server/internal/bitmap"

// Metric names usable in progression rule conditions.
const (
	MetricBooksDiscovered  = "books_discovered"
	MetricPuzzlesCompleted = "puzzles_completed"
	MetricBooksCompleted   = "books_completed"
	MetricArchiveRevealed  = "archive_revealed"
)

// Metrics is the derived view of a progress snapshot that rules and
// triggers evaluate against. Pure data, recomputed after every game event.
type Metrics struct {
	BooksDiscovered  int
	PuzzlesCompleted int
	BooksCompleted   int
	ArchiveRevealed  bool
	CurrentCategory  string
}

// ComputeMetrics derives metrics from a progress snapshot. No side effects.
func ComputeMetrics(p *Progress) Metrics {
	m := Metrics{
		ArchiveRevealed: p.ArchiveRevealed,
		CurrentCategory: p.CurrentCategory,
	}
	for _, book := range p.Books {
		m.BooksDiscovered++
		masked := bitmap.Sanitize(book.Bitmap, book.TotalParts)
		m.PuzzlesCompleted += bitmap.Count(masked)
		if bitmap.IsComplete(book.Bitmap, book.TotalParts) {
			m.BooksCompleted++
		}
	}
	return m
}

// Value returns the named metric as an integer (booleans as 0/1).
// The second return is false for unknown metric names.
func (m Metrics) Value(name string) (int, bool) {
	switch name {
	case MetricBooksDiscovered:
		return m.BooksDiscovered, true
	case MetricPuzzlesCompleted:
		return m.PuzzlesCompleted, true
	case MetricBooksCompleted:
		return m.BooksCompleted, true
	case MetricArchiveRevealed:
		if m.ArchiveRevealed {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
