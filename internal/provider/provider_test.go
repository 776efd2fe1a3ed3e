package provider

import (
	"context"
	"fmt"
	"testing"
)

// seqEmbedder is a fake Embedder for exercising the sequential batch
// fallback.
type seqEmbedder struct {
	calls int
	err   error
}

func (e *seqEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text))}, nil
}

func TestEmbedBatchSequential(t *testing.T) {
	e := &seqEmbedder{}
	vecs, err := EmbedBatchSequential(context.Background(), e, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("vecs = %d, want 3", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vecs[%d] = %v, want %v", i, vecs[i][0], want)
		}
	}
	if e.calls != 3 {
		t.Errorf("calls = %d, want 3", e.calls)
	}
}

func TestEmbedBatchSequentialEmpty(t *testing.T) {
	e := &seqEmbedder{}
	vecs, err := EmbedBatchSequential(context.Background(), e, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 0 {
		t.Errorf("vecs = %d, want 0", len(vecs))
	}
	if e.calls != 0 {
		t.Errorf("calls = %d, want 0", e.calls)
	}
}

func TestEmbedBatchSequentialStopsOnError(t *testing.T) {
	e := &seqEmbedder{err: fmt.Errorf("backend down")}
	if _, err := EmbedBatchSequential(context.Background(), e, []string{"a", "b"}); err == nil {
		t.Fatal("expected error")
	}
	if e.calls != 1 {
		t.Errorf("calls = %d, want 1 (stop at first failure)", e.calls)
	}
}

func TestEmbedBatchSequentialRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &seqEmbedder{}
	if _, err := EmbedBatchSequential(ctx, e, []string{"a"}); err == nil {
		t.Fatal("expected context error")
	}
	if e.calls != 0 {
		t.Errorf("calls = %d, want 0 after cancellation", e.calls)
	}
}
