package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	if got := AtoiDefault("", 7); got != 7 {
		t.Errorf("empty = %d", got)
	}
	if got := AtoiDefault("abc", 7); got != 7 {
		t.Errorf("garbage = %d", got)
	}
	if got := AtoiDefault("42", 7); got != 42 {
		t.Errorf("valid = %d", got)
	}
	if got := AtoiDefault("-3", 7); got != -3 {
		t.Errorf("negative = %d", got)
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		name                         string
		page, size                   int
		wantPage, wantSize, wantOffs int
	}{
		{"defaults applied", 0, 0, 1, 50, 0},
		{"negative page", -5, 10, 1, 10, 0},
		{"capped size", 2, 500, 2, 200, 200},
		{"plain", 3, 20, 3, 20, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, s, off := ClampPage(tc.page, tc.size, 50, 200)
			if p != tc.wantPage || s != tc.wantSize || off != tc.wantOffs {
				t.Errorf("ClampPage(%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
					tc.page, tc.size, p, s, off, tc.wantPage, tc.wantSize, tc.wantOffs)
			}
		})
	}
}
