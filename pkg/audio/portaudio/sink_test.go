package portaudio

import (
	"errors"
	"testing"
)

func TestRenderBlocks_FinalBlockIsExactRemainder(t *testing.T) {
	samples := make([]float32, 10)
	for i := range samples {
		samples[i] = float32(i + 1)
	}
	block := make([]float32, 4)

	var writes [][]float32
	aborted, err := renderBlocks(samples, block, func() bool { return false }, func(n int) error {
		w := make([]float32, n)
		copy(w, block[:n])
		writes = append(writes, w)
		return nil
	})
	if aborted || err != nil {
		t.Fatalf("aborted %v, err %v", aborted, err)
	}

	if len(writes) != 3 {
		t.Fatalf("writes: got %d, want 3", len(writes))
	}
	if len(writes[0]) != 4 || len(writes[1]) != 4 {
		t.Errorf("full block sizes: got %d, %d, want 4, 4", len(writes[0]), len(writes[1]))
	}
	if len(writes[2]) != 2 {
		t.Fatalf("final block: got %d samples, want exactly 2 (no padding)", len(writes[2]))
	}
	if writes[2][0] != 9 || writes[2][1] != 10 {
		t.Errorf("final block content: got %v, want [9 10]", writes[2])
	}
}

func TestRenderBlocks_SingleShortUnit(t *testing.T) {
	block := make([]float32, 1024)
	var sizes []int
	aborted, err := renderBlocks(make([]float32, 3), block, func() bool { return false }, func(n int) error {
		sizes = append(sizes, n)
		return nil
	})
	if aborted || err != nil {
		t.Fatalf("aborted %v, err %v", aborted, err)
	}
	if len(sizes) != 1 || sizes[0] != 3 {
		t.Errorf("sizes: got %v, want [3]", sizes)
	}
}

func TestRenderBlocks_StopAbandonsRemainder(t *testing.T) {
	block := make([]float32, 4)
	calls := 0
	aborted, err := renderBlocks(make([]float32, 12), block,
		func() bool { return calls >= 1 },
		func(n int) error { calls++; return nil })
	if err != nil {
		t.Fatal(err)
	}
	if !aborted {
		t.Fatal("expected abort")
	}
	if calls != 1 {
		t.Errorf("writes after stop: got %d, want 1", calls)
	}
}

func TestRenderBlocks_WriteErrorStops(t *testing.T) {
	block := make([]float32, 4)
	calls := 0
	wantErr := errors.New("device gone")
	aborted, err := renderBlocks(make([]float32, 12), block,
		func() bool { return false },
		func(n int) error { calls++; return wantErr })
	if aborted {
		t.Fatal("a write failure is not an abort")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want wrapped device error", err)
	}
	if calls != 1 {
		t.Errorf("writes after failure: got %d, want 1", calls)
	}
}
