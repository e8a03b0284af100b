// Package utils provides small helpers shared by the HTTP layer that carry
// no domain logic.
package utils

import (
	"strconv"
	"strings"
)

// MaxPageSize bounds every paginated admin listing.
const MaxPageSize = 100

// PageParams parses raw page and page_size values. Missing or malformed
// values fall back to page 1 and defaultSize; the size is clamped to
// [1, MaxPageSize].
func PageParams(rawPage, rawSize string, defaultSize int) (page, size int) {
	page = parseInt(rawPage, 1)
	if page < 1 {
		page = 1
	}
	size = parseInt(rawSize, defaultSize)
	switch {
	case size < 1:
		size = 1
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

// TotalPages is ceil(total/size); zero when size is not positive.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
