package fonts

import (
	"math"
	"testing"
)

func TestStandard(t *testing.T) {
	tests := []struct {
		ft          StandardType
		name        string
		wantMetrics bool
	}{
		{Helvetica, "Helvetica", true},
		{HelveticaBold, "Helvetica-Bold", false},
		{TimesRoman, "Times-Roman", false},
		{Courier, "Courier", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Standard(tt.ft)
			if f.Name != tt.name {
				t.Errorf("Standard(%d).Name = %q, want %q", tt.ft, f.Name, tt.name)
			}
			if f.Embedded {
				t.Errorf("standard font %s must not be embedded", f.Name)
			}
			if (f.Metrics != nil) != tt.wantMetrics {
				t.Errorf("Standard(%d) metrics present = %v, want %v", tt.ft, f.Metrics != nil, tt.wantMetrics)
			}
		})
	}
}

func TestStringWidth(t *testing.T) {
	helv := Standard(Helvetica)

	// "Hi" = H(722) + i(222) = 944 units -> 9.44pt at 10pt.
	if got := helv.StringWidth("Hi", 10); math.Abs(got-9.44) > 1e-9 {
		t.Errorf("StringWidth(Hi, 10) = %v, want 9.44", got)
	}

	courier := Standard(Courier)
	if got := courier.StringWidth("abcd", 10); math.Abs(got-24) > 1e-9 {
		t.Errorf("Courier StringWidth(abcd, 10) = %v, want 24", got)
	}

	// Fonts without metrics fall back to half an em per character.
	times := Standard(TimesRoman)
	if got := times.StringWidth("abcd", 10); math.Abs(got-20) > 1e-9 {
		t.Errorf("Times StringWidth(abcd, 10) = %v, want 20", got)
	}

	var nilFont *Font
	if got := nilFont.StringWidth("ab", 10); got != 10 {
		t.Errorf("nil font StringWidth = %v, want 10", got)
	}
}

func TestGetWidthsArray(t *testing.T) {
	widths := helveticaMetrics.GetWidthsArray()
	if len(widths) != 224 {
		t.Fatalf("len(widths) = %d, want 224", len(widths))
	}
	if widths[0] != 278 {
		t.Errorf("width of space = %d, want 278", widths[0])
	}
	if widths['A'-32] != 667 {
		t.Errorf("width of A = %d, want 667", widths['A'-32])
	}
	// 0x80 is the euro sign in WinAnsiEncoding.
	if widths[0x80-32] != 556 {
		t.Errorf("width of euro = %d, want 556", widths[0x80-32])
	}

	var m *Metrics
	for i, w := range m.GetWidthsArray() {
		if w != 500 {
			t.Fatalf("nil metrics width[%d] = %d, want 500", i, w)
		}
	}
}

func TestTrueTypeInvalid(t *testing.T) {
	if _, err := TrueType("Broken", []byte("not a font")); err == nil {
		t.Error("expected error for invalid TrueType data")
	}
}
