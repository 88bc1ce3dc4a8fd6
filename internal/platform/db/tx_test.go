package db

import (
	"context"
	"errors"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx for empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong type")
	}
}

func TestNoopTxRunner_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	calls := 0
	err := NoopTxRunner{}.WithTx(context.Background(), func(ctx context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("expected fn to run once, ran %d times", calls)
	}
}
