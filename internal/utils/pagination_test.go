package utils

import "testing"

func TestPageParams(t *testing.T) {
	cases := []struct {
		page, size string
		def        int
		wantPage   int
		wantSize   int
	}{
		{"", "", 20, 1, 20},
		{"3", "10", 20, 3, 10},
		{" 2 ", "5", 20, 2, 5},
		{"0", "0", 20, 1, 1},
		{"-4", "-1", 50, 1, 1},
		{"x", "y", 50, 1, 50},
		{"1", "1000", 20, 1, MaxPageSize},
		{"999999999999999999999999", "", 20, 1, 20},
	}
	for _, tc := range cases {
		p, s := PageParams(tc.page, tc.size, tc.def)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("PageParams(%q,%q,%d) = %d,%d; want %d,%d", tc.page, tc.size, tc.def, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d) = %d; want %d", tc.total, tc.size, got, tc.want)
		}
	}
}
