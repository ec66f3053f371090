package activity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/raaihank/pii-sentinel/internal/adapter"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/raaihank/pii-sentinel/internal/patterns"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"go.uber.org/zap"
)

func TestMemoryLogKeepsNewest(t *testing.T) {
	log := NewMemoryLog(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := log.Record(ctx, Entry{ID: fmt.Sprint(i)}); err != nil {
			t.Fatal(err)
		}
	}

	if log.Len() != 3 {
		t.Fatalf("len = %d", log.Len())
	}
	var ids []string
	all, _ := log.Recent(ctx, 0)
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"4", "3", "2"}, ids); diff != "" {
		t.Errorf("recent (-want +got):\n%s", diff)
	}
	if got, _ := log.Recent(ctx, 1); len(got) != 1 || got[0].ID != "4" {
		t.Errorf("Recent(1) = %+v", got)
	}

	log.Clear()
	if log.Len() != 0 {
		t.Errorf("len after clear = %d", log.Len())
	}
}

func TestMemoryLogDefaultLimit(t *testing.T) {
	log := NewMemoryLog(0)
	for i := 0; i < DefaultMaxEntries+10; i++ {
		log.Record(context.Background(), Entry{})
	}
	if log.Len() != DefaultMaxEntries {
		t.Errorf("len = %d, want %d", log.Len(), DefaultMaxEntries)
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, Entry) error {
	f.calls++
	return errors.New("unavailable")
}

func TestMultiContinuesPastFailures(t *testing.T) {
	bad := &failingRecorder{}
	mem := NewMemoryLog(10)
	m := NewMulti(zap.NewNop(), bad, nil, mem)

	err := m.RecordAll(context.Background(), []Entry{{ID: "a"}, {ID: "b"}})
	if err == nil {
		t.Fatal("expected combined error")
	}
	if bad.calls != 2 || mem.Len() != 2 {
		t.Errorf("bad calls=%d memory=%d", bad.calls, mem.Len())
	}
}

func TestDetailsValueScan(t *testing.T) {
	in := Details{ServiceName: "Claude", SubstitutionCount: 2, PIITypes: []string{"name"}}
	v, err := in.Value()
	if err != nil {
		t.Fatal(err)
	}

	var out Details
	if err := out.Scan(v); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}

	if err := out.Scan(nil); err != nil || out.ServiceName != "" {
		t.Errorf("nil scan gave %+v, %v", out, err)
	}
	if err := out.Scan(42); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestFromRequest(t *testing.T) {
	t.Run("substitutions", func(t *testing.T) {
		entries := FromRequest(adapter.ServiceChatGPT, pipeline.Result{
			Success: true,
			Substitutions: []alias.Record{
				{From: "Joe", To: "Alex", PIIType: alias.PIIName, ProfileID: "p1"},
				{From: "joe@x.io", To: "alex@y.io", PIIType: alias.PIIEmail, ProfileID: "p1"},
			},
		})
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		e := entries[0]
		if e.Type != TypeSubstitution || e.Message != "ChatGPT: 2 items replaced" {
			t.Errorf("unexpected entry %+v", e)
		}
		if diff := cmp.Diff([]string{"email", "name"}, e.Details.PIITypes); diff != "" {
			t.Errorf("pii types (-want +got):\n%s", diff)
		}
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Error("entry should be stamped")
		}
	})

	t.Run("keys redacted", func(t *testing.T) {
		entries := FromRequest(adapter.ServiceClaude, pipeline.Result{
			Success:      true,
			DetectedKeys: []keyvault.DetectedKey{{Format: patterns.FormatOpenAI}},
			KeysRedacted: 1,
			KeyFormats:   []patterns.Format{patterns.FormatOpenAI},
		})
		if len(entries) != 1 || entries[0].Message != "API Keys: 1 keys redacted" {
			t.Fatalf("unexpected entries %+v", entries)
		}
		if diff := cmp.Diff([]string{"openai"}, entries[0].Details.KeyTypes); diff != "" {
			t.Errorf("key types (-want +got):\n%s", diff)
		}
	})

	t.Run("keys allowed", func(t *testing.T) {
		entries := FromRequest(adapter.ServiceGemini, pipeline.Result{
			Success:      true,
			DetectedKeys: []keyvault.DetectedKey{{}, {}},
			KeysAllowed:  true,
		})
		if len(entries) != 1 || entries[0].Type != TypeWarning {
			t.Fatalf("unexpected entries %+v", entries)
		}
		if want := "Warning: 2 API keys found but not redacted (log-only mode)"; entries[0].Message != want {
			t.Errorf("message = %q", entries[0].Message)
		}
	})

	t.Run("confirmation", func(t *testing.T) {
		entries := FromRequest(adapter.ServiceUnknown, pipeline.Result{
			Success:           true,
			DetectedKeys:      []keyvault.DetectedKey{{}},
			NeedsConfirmation: true,
		})
		if len(entries) != 1 || entries[0].Type != TypeInterception {
			t.Fatalf("unexpected entries %+v", entries)
		}
	})

	t.Run("error", func(t *testing.T) {
		entries := FromRequest(adapter.ServicePerplexity, pipeline.Result{Error: "boom"})
		if len(entries) != 1 || entries[0].Type != TypeError || entries[0].Details.Error != "boom" {
			t.Fatalf("unexpected entries %+v", entries)
		}
	})

	t.Run("nothing happened", func(t *testing.T) {
		if entries := FromRequest(adapter.ServiceChatGPT, pipeline.Result{Success: true}); len(entries) != 0 {
			t.Errorf("expected no entries, got %+v", entries)
		}
	})
}

func TestFromResponse(t *testing.T) {
	entries := FromResponse(adapter.ServiceCopilot, pipeline.ResponseResult{
		Success:       true,
		Substitutions: []alias.Record{{PIIType: alias.PIIName}},
	})
	if len(entries) != 1 || entries[0].Message != "Copilot: 1 items restored" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries := FromResponse(adapter.ServiceCopilot, pipeline.ResponseResult{Success: true}); entries != nil {
		t.Errorf("expected nil, got %+v", entries)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := map[string]string{
		"postgres://sentinel:secret@db:5432/sentinel": "postgres://sentinel:***@db:5432/sentinel",
		"postgres://sentinel@db/sentinel":             "postgres://sentinel@db/sentinel",
		"postgres://db:5432/sentinel":                 "postgres://db:5432/sentinel",
	}
	for in, want := range tests {
		if got := maskDatabaseURL(in); got != want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestStoreRoundTrip needs a disposable database.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("SENTINEL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SENTINEL_TEST_DATABASE_URL not set")
	}

	store, err := NewStore(&StoreConfig{DatabaseURL: url, MaxOpenConns: 2, MaxIdleConns: 1}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	entry := NewEntry(TypeWarning, "claude", "test entry", Details{APIKeysFound: 1})
	if err := store.Record(ctx, entry); err != nil {
		t.Fatal(err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range recent {
		if e.ID == entry.ID {
			found = true
			if e.Details.APIKeysFound != 1 {
				t.Errorf("details = %+v", e.Details)
			}
		}
	}
	if !found {
		t.Error("stored entry not returned")
	}

	if _, err := store.Prune(ctx, -time.Hour); err != nil {
		t.Fatal(err)
	}
}
