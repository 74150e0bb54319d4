package desktop

import "testing"

func TestParseCaptureMethod(t *testing.T) {
	tests := []struct {
		in   string
		want CaptureMethod
	}{
		{"screen", ScreenCopy},
		{"BitBlt", ScreenCopy},
		{"print", SelfPaint},
		{"", SelfPaint},
		{"bogus", SelfPaint},
		{" message ", MessagePaint},
		{"WM_PRINT", MessagePaint},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCaptureMethod(tt.in); got != tt.want {
				t.Errorf("ParseCaptureMethod(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCaptureMethodStringRoundTrip(t *testing.T) {
	for _, m := range []CaptureMethod{ScreenCopy, SelfPaint, MessagePaint} {
		if got := ParseCaptureMethod(m.String()); got != m {
			t.Errorf("ParseCaptureMethod(%q) = %v, want %v", m.String(), got, m)
		}
	}
}

func TestRectHelpers(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 400, Height: 300}
	if r.Empty() {
		t.Fatal("expected non-empty rect")
	}
	if !(Rect{Width: 0, Height: 5}).Empty() {
		t.Fatal("expected zero-width rect to be empty")
	}
	moved := r.MoveTo(50, 60)
	if moved != (Rect{X: 50, Y: 60, Width: 400, Height: 300}) {
		t.Fatalf("unexpected MoveTo result %v", moved)
	}
	if !r.SameSize(moved) {
		t.Fatal("expected MoveTo to preserve size")
	}
	if r.SameSize(Rect{Width: 401, Height: 300}) {
		t.Fatal("expected different widths to differ")
	}
}

func TestValidatePixels(t *testing.T) {
	if err := ValidatePixels(make([]byte, 16), 2, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePixels(make([]byte, 15), 2, 2); err == nil {
		t.Fatal("expected short buffer error")
	}
	if err := ValidatePixels(nil, 0, 2); err == nil {
		t.Fatal("expected dimension error")
	}
}
