// Package memory holds in-process stores with the same conditional-update
// semantics as the postgres repositories. Every record lives in an xsync map
// keyed by id; conditional writes run inside Map.Compute so a transition on one
// record never blocks writes to unrelated records.
package memory

import (
	"sort"
	"strings"

	"github.com/noah-isme/teacher-transfer-api/internal/repository"
)

// ErrDuplicateKey mirrors a unique index violation.
var ErrDuplicateKey = repository.ErrDuplicate

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func page(total, page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
