package engines

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/utero-ai/utero-tts/internal/tts/engines/mock"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

func TestFallbackEngine_SwitchesAfterThreshold(t *testing.T) {
	primary := mock.New()
	primary.SetFailure(errors.New("primary engine failure"))
	fallback := mock.New()

	engine := NewFallbackEngine(primary, fallback, 2, nil)
	req := ttypes.SynthesisRequest{Text: "Halo", Language: "id"}

	// First failure is reported to the caller.
	if _, err := engine.Synthesize(context.Background(), req); err == nil {
		t.Fatal("Expected first attempt to fail")
	}
	if engine.UsingFallback() {
		t.Fatal("Should not switch before the threshold")
	}

	// Second failure switches but still fails the request.
	if _, err := engine.Synthesize(context.Background(), req); err == nil {
		t.Fatal("Expected the request that crosses the threshold to fail")
	}
	if !engine.UsingFallback() {
		t.Error("Expected fallback to be active")
	}
	if fallback.CallCount() != 0 {
		t.Errorf("Fallback should not serve the failed request, got %d calls", fallback.CallCount())
	}
	if got := engine.Status(); got != "using fallback mock (primary failed 2 times)" {
		t.Errorf("Unexpected status: %s", got)
	}

	// Subsequent calls skip the primary.
	audio, err := engine.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected fallback call to succeed: %v", err)
	}
	if len(audio) == 0 {
		t.Error("Expected audio from fallback")
	}
	if primary.CallCount() != 2 {
		t.Errorf("Primary should have been called twice, got %d", primary.CallCount())
	}
	if fallback.CallCount() != 1 {
		t.Errorf("Fallback should have been called once, got %d", fallback.CallCount())
	}

	engine.Reset()
	if engine.UsingFallback() {
		t.Error("Reset should return to the primary")
	}
}

func TestFallbackEngine_OneProviderCallPerFailedRequest(t *testing.T) {
	primary := mock.New()
	primary.SetFailure(errors.New("primary down"))
	fallback := mock.New()

	engine := NewFallbackEngine(primary, fallback, 1, nil)
	_, err := engine.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "Halo", Language: "id"})
	if err == nil || !strings.Contains(err.Error(), "primary down") {
		t.Fatalf("Expected the primary error, got %v", err)
	}
	if calls := primary.CallCount() + fallback.CallCount(); calls != 1 {
		t.Errorf("Expected one provider call, got %d (primary %d, fallback %d)",
			calls, primary.CallCount(), fallback.CallCount())
	}
	if !engine.UsingFallback() {
		t.Error("Expected the next request to go to the fallback")
	}
}

func TestFallbackEngine_PrimaryRecovery(t *testing.T) {
	primary := mock.New()
	primary.SetFailure(errors.New("flaky"))
	engine := NewFallbackEngine(primary, mock.New(), 3, nil)
	req := ttypes.SynthesisRequest{Text: "Halo", Language: "id"}

	_, _ = engine.Synthesize(context.Background(), req)
	_, _ = engine.Synthesize(context.Background(), req)

	primary.SetFailure(nil)
	if _, err := engine.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("Expected recovery: %v", err)
	}
	if got := engine.Status(); got != "using primary mock (failures: 0/3)" {
		t.Errorf("Failure count should reset, got %q", got)
	}
}

func TestFallbackEngine_FallbackFailureIsReturned(t *testing.T) {
	primary := mock.New()
	primary.SetFailure(errors.New("primary down"))
	fallback := mock.New()
	fallback.SetFailure(errors.New("fallback down"))

	engine := NewFallbackEngine(primary, fallback, 1, nil)
	req := ttypes.SynthesisRequest{Text: "Halo", Language: "id"}
	_, _ = engine.Synthesize(context.Background(), req)

	_, err := engine.Synthesize(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "fallback down") {
		t.Fatalf("Expected the fallback error, got %v", err)
	}
	if primary.CallCount() != 1 {
		t.Errorf("Primary should not be retried while on the fallback, got %d calls", primary.CallCount())
	}
}

func TestFallbackEngine_CancellationDoesNotCount(t *testing.T) {
	primary := mock.New()
	primary.SetFailure(errors.New("unreachable"))
	engine := NewFallbackEngine(primary, mock.New(), 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Synthesize(ctx, ttypes.SynthesisRequest{Text: "Halo", Language: "id"}); err == nil {
		t.Fatal("Expected error")
	}
	if engine.UsingFallback() {
		t.Error("A canceled request must not trigger failover")
	}
}

func TestFallbackEngine_ValidateAndClose(t *testing.T) {
	primary := mock.New()
	fallback := mock.New()
	engine := NewFallbackEngine(primary, fallback, 2, nil)

	primary.SetAvailable(false)
	if err := engine.Validate(); err != nil {
		t.Errorf("One usable engine is enough: %v", err)
	}
	fallback.SetAvailable(false)
	if err := engine.Validate(); !errors.Is(err, mock.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable in chain, got %v", err)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !primary.Closed() || !fallback.Closed() {
		t.Error("Both engines should be closed")
	}
}
