package export_test

import (
	"context"
	"errors"
	"testing"

	"dubsync/internal/export"
	"dubsync/internal/mediaerr"
	"dubsync/internal/testsupport"
)

func TestNewPipelineFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		want    export.StopPolicy
		wantErr bool
	}{
		{name: "default", policy: "", want: export.StopOnFirstEnd},
		{name: "both", policy: "both", want: export.StopWhenBothEnd},
		{name: "video", policy: " VIDEO ", want: export.StopOnVideoEnd},
		{name: "unknown", policy: "whenever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			cfg.Export.StopPolicy = tt.policy
			p, err := export.NewPipelineFromConfig(cfg, newFakeHost(1, 1), nil, nil)
			if tt.wantErr {
				if !errors.Is(err, mediaerr.ErrConfiguration) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPipelineFromConfig: %v", err)
			}
			if p.Policy() != tt.want {
				t.Fatalf("Policy() = %q, want %q", p.Policy(), tt.want)
			}
		})
	}
}

func TestNewPipelineFromConfigRequiresConfig(t *testing.T) {
	if _, err := export.NewPipelineFromConfig(nil, newFakeHost(1, 1), nil, nil); !errors.Is(err, mediaerr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewPipelineNormalizesPolicy(t *testing.T) {
	p, err := export.NewPipeline(export.Options{Host: newFakeHost(4, 2), Policy: "BOTH"})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.Policy() != export.StopWhenBothEnd {
		t.Fatalf("Policy() = %q, want %q", p.Policy(), export.StopWhenBothEnd)
	}
	res, err := p.Export(context.Background(), request("normalized"))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.StopReason != "both_ended" || res.Duration < 3.8 {
		t.Fatalf("expected export to wait for both tracks, got %q after %v", res.StopReason, res.Duration)
	}

	if _, err := export.NewPipeline(export.Options{Host: newFakeHost(1, 1), Policy: "never"}); !errors.Is(err, mediaerr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
