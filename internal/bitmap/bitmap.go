// Package bitmap packs per-part book completion into a single uint32.
// Bit i (0-indexed) is set when part i of the book is completed. A book
// may have at most 32 parts; bits at or above a book's part count are
// meaningless and are cleared by Sanitize.
package bitmap

import "math/bits"

// MaxParts is the largest number of parts a single bitmap can track.
const MaxParts = 32

// Encode packs an ordered list of completion flags into a bitmap.
// Only the first 32 flags are representable; any beyond that are dropped.
func Encode(flags []bool) uint32 {
	var bm uint32
	for i, set := range flags {
		if i >= MaxParts {
			break
		}
		if set {
			bm |= 1 << uint(i)
		}
	}
	return bm
}

// Decode unpacks the low totalParts bits of a bitmap into completion flags.
// Returns nil when totalParts is not positive.
func Decode(bm uint32, totalParts int) []bool {
	if totalParts <= 0 {
		return nil
	}
	if totalParts > MaxParts {
		totalParts = MaxParts
	}
	flags := make([]bool, totalParts)
	for i := range flags {
		flags[i] = bm&(1<<uint(i)) != 0
	}
	return flags
}

// SetPart marks part index as completed. Indexes outside [0,31] leave the
// bitmap unchanged.
func SetPart(bm uint32, index int) uint32 {
	if index < 0 || index >= MaxParts {
		return bm
	}
	return bm | 1<<uint(index)
}

// ClearPart marks part index as not completed. Indexes outside [0,31]
// leave the bitmap unchanged.
func ClearPart(bm uint32, index int) uint32 {
	if index < 0 || index >= MaxParts {
		return bm
	}
	return bm &^ (1 << uint(index))
}

// TogglePart flips the completion state of part index. Indexes outside
// [0,31] leave the bitmap unchanged.
func TogglePart(bm uint32, index int) uint32 {
	if index < 0 || index >= MaxParts {
		return bm
	}
	return bm ^ 1<<uint(index)
}

// IsPartCompleted reports whether part index is completed.
func IsPartCompleted(bm uint32, index int) bool {
	if index < 0 || index >= MaxParts {
		return false
	}
	return bm&(1<<uint(index)) != 0
}

// Count returns the number of completed parts in the bitmap.
func Count(bm uint32) int {
	return bits.OnesCount32(bm)
}

// IsComplete reports whether all of the low totalParts bits are set.
func IsComplete(bm uint32, totalParts int) bool {
	if totalParts <= 0 || totalParts > MaxParts {
		return false
	}
	return bm&CreateCompleted(totalParts) == CreateCompleted(totalParts)
}

// Percent returns the completion percentage over the low totalParts bits,
// rounded to the nearest integer. Returns 0 when totalParts is not positive.
func Percent(bm uint32, totalParts int) int {
	if totalParts <= 0 {
		return 0
	}
	if totalParts > MaxParts {
		totalParts = MaxParts
	}
	done := Count(Sanitize(bm, totalParts))
	return (done*100 + totalParts/2) / totalParts
}

// FirstIncomplete returns the lowest part index in [0,totalParts) that is
// not completed, or -1 when every part is done.
func FirstIncomplete(bm uint32, totalParts int) int {
	if totalParts > MaxParts {
		totalParts = MaxParts
	}
	for i := 0; i < totalParts; i++ {
		if bm&(1<<uint(i)) == 0 {
			return i
		}
	}
	return -1
}

// CreateCompleted returns a bitmap with the low totalParts bits set.
func CreateCompleted(totalParts int) uint32 {
	if totalParts <= 0 {
		return 0
	}
	if totalParts >= MaxParts {
		return ^uint32(0)
	}
	return 1<<uint(totalParts) - 1
}

// CreateEmpty returns a bitmap with no parts completed.
func CreateEmpty() uint32 {
	return 0
}

// Merge combines two bitmaps, keeping every part completed in either.
// Commutative, associative, idempotent, and never clears a bit.
func Merge(a, b uint32) uint32 {
	return a | b
}

// Sanitize clears bits at or above totalParts. Defends against a book's
// part count shrinking after a content edit.
func Sanitize(bm uint32, totalParts int) uint32 {
	if totalParts <= 0 {
		return 0
	}
	if totalParts >= MaxParts {
		return bm
	}
	return bm & CreateCompleted(totalParts)
}

// Validate reports whether the bitmap is well formed for a book with
// totalParts parts: totalParts in [1,32] and no bit set at or above it.
func Validate(bm uint32, totalParts int) bool {
	if totalParts < 1 || totalParts > MaxParts {
		return false
	}
	return bm == Sanitize(bm, totalParts)
}
