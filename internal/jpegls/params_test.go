package jpegls

import (
	"bytes"
	"testing"
)

func TestNewParamsLossless16(t *testing.T) {
	p := NewParams(16, 0)
	if p.MaxVal != 65535 {
		t.Errorf("MaxVal = %d", p.MaxVal)
	}
	if p.Range != 65536 {
		t.Errorf("Range = %d", p.Range)
	}
	if p.Qbpp != 16 {
		t.Errorf("Qbpp = %d", p.Qbpp)
	}
	if p.Limit != 64 {
		t.Errorf("Limit = %d", p.Limit)
	}
}

func TestNewParamsNearLossless(t *testing.T) {
	p := NewParams(16, 10)
	want := (65535+20)/21 + 1
	if p.Range != want {
		t.Errorf("Range = %d, want %d", p.Range, want)
	}
	if p.T1 <= 10 {
		t.Errorf("T1 = %d, must exceed NEAR", p.T1)
	}
}

func TestPredictMED(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c int
		want    int
	}{
		{"horizontal edge", 100, 50, 150, 50},
		{"vertical edge", 100, 150, 50, 150},
		{"no edge", 100, 120, 110, 110},
		{"all equal", 100, 100, 100, 100},
		{"zeros", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Predict(tt.a, tt.b, tt.c); got != tt.want {
				t.Errorf("Predict(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
			}
		})
	}
}

func TestQuantizeGradientBuckets(t *testing.T) {
	tests := []struct {
		g    int
		want int
	}{
		{0, 0},
		{1, 1}, {-1, -1},
		{5, 2}, {-5, -2},
		{15, 3}, {-15, -3},
		{50, 4}, {-50, -4},
	}
	for _, tt := range tests {
		if got := QuantizeGradient(tt.g, 3, 7, 21); got != tt.want {
			t.Errorf("QuantizeGradient(%d) = %d, want %d", tt.g, got, tt.want)
		}
	}
}

func TestGetContextIndexSignFlip(t *testing.T) {
	tests := []struct {
		q1, q2, q3 int
		wantIdx    int
		wantSign   int
	}{
		{0, 0, 0, 0, 1},
		{1, 0, 0, 81, 1},
		{-1, 0, 0, 81, -1},
		{0, 1, 0, 9, 1},
		{0, -1, 0, 9, -1},
		{0, 0, -3, 3, -1},
	}
	for _, tt := range tests {
		idx, sign := GetContextIndex(tt.q1, tt.q2, tt.q3)
		if idx != tt.wantIdx || sign != tt.wantSign {
			t.Errorf("GetContextIndex(%d, %d, %d) = (%d, %d), want (%d, %d)",
				tt.q1, tt.q2, tt.q3, idx, sign, tt.wantIdx, tt.wantSign)
		}
	}
}

func TestContextIndexBounds(t *testing.T) {
	for q1 := -4; q1 <= 4; q1++ {
		for q2 := -4; q2 <= 4; q2++ {
			for q3 := -4; q3 <= 4; q3++ {
				idx, _ := GetContextIndex(q1, q2, q3)
				if idx < 0 || idx >= ContextCount {
					t.Fatalf("GetContextIndex(%d, %d, %d) = %d out of range", q1, q2, q3, idx)
				}
			}
		}
	}
}

func TestReduceErrvalRange(t *testing.T) {
	const rangeVal = 256
	for e := -255; e <= 255; e++ {
		r := reduceErrval(e, rangeVal)
		if r < -(rangeVal / 2) || r >= (rangeVal+1)/2 {
			t.Fatalf("reduceErrval(%d) = %d outside coding alphabet", e, r)
		}
		if (r-e)%rangeVal != 0 {
			t.Fatalf("reduceErrval(%d) = %d not congruent mod %d", e, r, rangeVal)
		}
	}
}

func TestReconstructLosslessIsExact(t *testing.T) {
	p := NewParams(8, 0)
	for actual := 0; actual <= p.MaxVal; actual += 5 {
		for px := 0; px <= p.MaxVal; px += 7 {
			for _, sign := range []int{1, -1} {
				errval := reduceErrval((actual-px)*sign, p.Range)
				got := reconstructSample(px, errval, sign, 0, p.Range, p.MaxVal)
				if got != actual {
					t.Fatalf("reconstruct(px=%d, actual=%d, sign=%d) = %d", px, actual, sign, got)
				}
			}
		}
	}
}

func TestGolombRoundTrip(t *testing.T) {
	p := NewParams(16, 0)
	for _, k := range []int{0, 1, 4, 8, 15} {
		for _, mapped := range []int{0, 1, 2, 100, 1000, 65535} {
			var b bytes.Buffer
			bw := newBitWriter(&b)
			encodeGolomb(bw, mapped, k, p.Limit, p.Qbpp)
			bw.flush()
			br := newBitReader(b.Bytes())
			got, err := decodeGolomb(br, k, p.Limit, p.Qbpp)
			if err != nil {
				t.Fatalf("k=%d mapped=%d: %v", k, mapped, err)
			}
			if got != mapped {
				t.Fatalf("k=%d: golomb round trip %d -> %d", k, mapped, got)
			}
		}
	}
}
