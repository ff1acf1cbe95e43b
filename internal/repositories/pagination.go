package repositories

import (
	"math"

	"gorm.io/gorm"
)

// maxOffset keeps absurd page numbers from overflowing the row offset.
const maxOffset = math.MaxInt32

// pageOffset is the row offset of a 1-based page, clamped to [0, maxOffset].
func pageOffset(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	if page-1 > maxOffset/limit {
		return maxOffset
	}
	return (page - 1) * limit
}

// paginate is a gorm scope for 1-based pages. Pages past the end simply return no rows.
func paginate(page, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(pageOffset(page, limit)).Limit(limit)
	}
}
