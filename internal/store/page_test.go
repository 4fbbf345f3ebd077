package store

import "testing"

func TestClampPage(t *testing.T) {
	cases := []struct {
		name       string
		page       int
		pageSize   int
		totalItems int
		wantPage   int
		wantPages  int
	}{
		{name: "first page", page: 1, pageSize: 10, totalItems: 25, wantPage: 1, wantPages: 3},
		{name: "middle page", page: 2, pageSize: 10, totalItems: 25, wantPage: 2, wantPages: 3},
		{name: "beyond last clamps to last", page: 9, pageSize: 10, totalItems: 25, wantPage: 3, wantPages: 3},
		{name: "zero page clamps to one", page: 0, pageSize: 10, totalItems: 25, wantPage: 1, wantPages: 3},
		{name: "negative page clamps to one", page: -3, pageSize: 10, totalItems: 25, wantPage: 1, wantPages: 3},
		{name: "empty collection", page: 1, pageSize: 10, totalItems: 0, wantPage: 1, wantPages: 1},
		{name: "empty collection out of range", page: 7, pageSize: 10, totalItems: 0, wantPage: 1, wantPages: 1},
		{name: "exact boundary", page: 2, pageSize: 10, totalItems: 20, wantPage: 2, wantPages: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := clampPage(tc.page, tc.pageSize, tc.totalItems)
			if info.Page != tc.wantPage {
				t.Fatalf("page = %d, want %d", info.Page, tc.wantPage)
			}
			if info.TotalPages != tc.wantPages {
				t.Fatalf("total pages = %d, want %d", info.TotalPages, tc.wantPages)
			}
			if info.TotalItems != tc.totalItems {
				t.Fatalf("total items = %d, want %d", info.TotalItems, tc.totalItems)
			}
		})
	}
}

func TestPageOffset(t *testing.T) {
	info := clampPage(3, 10, 45)
	if got := info.offset(); got != 20 {
		t.Fatalf("offset = %d, want 20", got)
	}
}
