package broker

import "testing"

func TestParseSelector(t *testing.T) {
	tests := []struct {
		raw       string
		secondary bool
		index     int
		wantErr   bool
	}{
		{"", false, 0, false},
		{"  ", false, 0, false},
		{"0", true, 0, false},
		{"2", true, 2, false},
		{" 1 ", true, 1, false},
		{"-1", false, 0, true},
		{"abc", false, 0, true},
		{"1.5", false, 0, true},
	}

	for _, tt := range tests {
		sel, err := ParseSelector(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseSelector(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSelector(%q): %v", tt.raw, err)
		}
		if sel.IsSecondary() != tt.secondary || (tt.secondary && sel.Index() != tt.index) {
			t.Fatalf("ParseSelector(%q) = %s", tt.raw, sel)
		}
	}
}

func TestSelectorString(t *testing.T) {
	if got := Primary().String(); got != "primary" {
		t.Fatalf("Primary().String() = %q", got)
	}
	if got := SecondaryIndex(3).String(); got != "secondary[3]" {
		t.Fatalf("SecondaryIndex(3).String() = %q", got)
	}
}
