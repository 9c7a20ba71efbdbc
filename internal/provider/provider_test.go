package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

func TestWithTimeoutPropagatesSuccess(t *testing.T) {
	err := WithTimeout(context.Background(), "test", time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWithTimeoutWrapsDeadlineExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), "test.label", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var fe *FailoverError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FailoverError, got %T: %v", err, err)
	}
	if fe.Reason != ReasonTimeout {
		t.Fatalf("got reason %q, want %q", fe.Reason, ReasonTimeout)
	}
}

func TestWithTimeoutPassesThroughCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, "test", time.Second, func(cctx context.Context) error {
		<-cctx.Done()
		return cctx.Err()
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var fe *FailoverError
	if errors.As(err, &fe) {
		t.Fatalf("expected raw context error when caller canceled, got FailoverError: %v", fe)
	}
}

func TestExtractEmptyReplyRecovery(t *testing.T) {
	if !ExtractEmptyReplyRecovery(models.Completion{Text: "   ...  "}) {
		t.Fatalf("expected whitespace/punctuation-only text to be empty")
	}
	if ExtractEmptyReplyRecovery(models.Completion{Text: "ok"}) {
		t.Fatalf("expected non-empty text to not be flagged")
	}
}
