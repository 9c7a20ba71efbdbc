package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStageRecordsDuration(t *testing.T) {
	r := NewStageRecorder(nil, nil, "chat")
	err := r.Stage(context.Background(), "prompt_assembly", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	stages := r.Stages()
	if stages["prompt_assembly"] <= 0 {
		t.Fatalf("expected a positive duration, got %v", stages["prompt_assembly"])
	}
}

func TestStagePropagatesError(t *testing.T) {
	r := NewStageRecorder(nil, nil, "chat")
	wantErr := errors.New("boom")
	err := r.Stage(context.Background(), "provider_call", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestHotPathPicksSlowestStage(t *testing.T) {
	r := NewStageRecorder(nil, nil, "chat")
	_ = r.Stage(context.Background(), "fast", func(ctx context.Context) error {
		time.Sleep(1 * time.Millisecond)
		return nil
	})
	_ = r.Stage(context.Background(), "slow", func(ctx context.Context) error {
		time.Sleep(15 * time.Millisecond)
		return nil
	})
	if got := r.HotPath(); got != "slow" {
		t.Fatalf("got hot path %q, want slow", got)
	}
}

func TestHotPathEmptyWhenNoStagesRecorded(t *testing.T) {
	r := NewStageRecorder(nil, nil, "chat")
	if got := r.HotPath(); got != "" {
		t.Fatalf("got hot path %q, want empty", got)
	}
}

func TestRepeatedStageNameAccumulates(t *testing.T) {
	r := NewStageRecorder(nil, nil, "chat")
	for i := 0; i < 3; i++ {
		_ = r.Stage(context.Background(), "tool_call", func(ctx context.Context) error {
			time.Sleep(2 * time.Millisecond)
			return nil
		})
	}
	stages := r.Stages()
	if stages["tool_call"] < 6*time.Millisecond {
		t.Fatalf("expected accumulated duration, got %v", stages["tool_call"])
	}
}
