package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

var openAIKey = "sk-" + strings.Repeat("a", 48)

func newProcessor(t *testing.T, cfg *Config) *Processor {
	t.Helper()
	orch := pipeline.New(pipeline.Deps{}, pipeline.Options{DecodeResponses: true}, zap.NewNop())
	orch.Reload(pipeline.Snapshot{
		Aliases: []alias.Mapping{{Real: "Joe Smith", Alias: "Alex Carter", PIIType: alias.PIIName, Enabled: true}},
		Vault:   keyvault.Policy{Enabled: true, Mode: keyvault.ModeAutoRedact},
	})
	return NewProcessor(orch, cfg, zap.NewNop())
}

func decodeOutputs(t *testing.T, data []byte) []Output {
	t.Helper()
	var outs []Output
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var o Output
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			t.Fatalf("bad output line %q: %v", scanner.Text(), err)
		}
		outs = append(outs, o)
	}
	return outs
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"data.csv":        FormatCSV,
		"data.CSV":        FormatCSV,
		"data.parquet":    FormatParquet,
		"data.jsonl":      FormatJSONL,
		"data.ndjson":     FormatJSONL,
		"data.json":       FormatJSONL,
		"no-extension":    FormatCSV,
		"dir.v1/data.txt": FormatCSV,
	}
	for name, want := range tests {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
		ok   bool
	}{
		{"", DirectionRequest, true},
		{"Outbound", DirectionRequest, true},
		{"response", DirectionResponse, true},
		{" inbound ", DirectionResponse, true},
		{"sideways", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDirection(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDirection(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestProcessKeepsInputOrder(t *testing.T) {
	p := newProcessor(t, &Config{Workers: 8, QueueSize: 2})

	var records []Record
	for i := 0; i < 200; i++ {
		records = append(records, Record{Service: "chatgpt", Body: `{"prompt":"Joe Smith"}`})
	}
	records[7].Direction = "response"
	records[7].Body = "hi Alex Carter"

	var out bytes.Buffer
	result, err := p.Process(context.Background(), records, &out)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalRecords != 200 || result.ProcessedOK != 200 {
		t.Errorf("unexpected result %+v", result)
	}

	outs := decodeOutputs(t, out.Bytes())
	if len(outs) != 200 {
		t.Fatalf("got %d lines", len(outs))
	}
	for i, o := range outs {
		if o.Line != int64(i+1) {
			t.Fatalf("line %d out of order: %d", i, o.Line)
		}
	}
	if outs[0].Body != `{"prompt":"Alex Carter"}` {
		t.Errorf("request body = %s", outs[0].Body)
	}
	if outs[7].Body != "hi Joe Smith" || outs[7].Direction != "response" {
		t.Errorf("response output = %+v", outs[7])
	}
}

func TestProcessFileCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	csvData := "id,service,direction,body\n" +
		`r1,claude,request,"{""prompt"":""key ` + openAIKey + `""}"` + "\n" +
		"r2,https://gemini.google.com/app,request,Joe Smith wrote this\n" +
		"r3,chatgpt,sideways,whatever\n"
	if err := os.WriteFile(path, []byte(csvData), 0o600); err != nil {
		t.Fatal(err)
	}

	p := newProcessor(t, &Config{Workers: 2})
	var out bytes.Buffer
	result, err := p.ProcessFile(context.Background(), path, &out)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	want := &Result{
		TotalRecords:    3,
		ProcessedOK:     2,
		ProcessedFailed: 1,
		Substitutions:   1,
		KeysFound:       1,
		Errors:          []string{`line 3: unknown direction "sideways"`},
	}
	result.Duration = 0
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	outs := decodeOutputs(t, out.Bytes())
	if outs[0].ID != "r1" || outs[0].Body != `{"prompt":"key [OPENAI_KEY]"}` || outs[0].KeysRedacted != 1 {
		t.Errorf("first output = %+v", outs[0])
	}
	if outs[1].Service != "gemini" || outs[1].Body != "Alex Carter wrote this" {
		t.Errorf("second output = %+v", outs[1])
	}
	if strings.Contains(out.String(), openAIKey) {
		t.Error("raw key leaked into output")
	}
}

func TestProcessFileCSVRequiresBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte("id,text\n1,x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := newProcessor(t, nil)
	if _, err := p.ProcessFile(context.Background(), path, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for missing body column")
	}
}

func TestProcessFileJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.jsonl")
	data := `{"id":"a","service":"claude","body":"Joe Smith"}` + "\n" +
		`{"id":"b","direction":"response","body":"Alex Carter"}` + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	p := newProcessor(t, nil)
	var out bytes.Buffer
	if _, err := p.ProcessFile(context.Background(), path, &out); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	outs := decodeOutputs(t, out.Bytes())
	got := []string{outs[0].Body, outs[1].Body}
	if diff := cmp.Diff([]string{"Alex Carter", "Joe Smith"}, got); diff != "" {
		t.Errorf("bodies (-want +got):\n%s", diff)
	}
}

func TestProcessFileParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.parquet")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	writer := parquet.NewWriter(file, parquet.SchemaOf(new(Record)))
	for _, rec := range []Record{
		{ID: "p1", Service: "chatgpt", Direction: "request", Body: "ask Joe Smith"},
		{ID: "p2", Service: "chatgpt", Direction: "request", Body: "nothing here"},
	} {
		rec := rec
		if err := writer.Write(&rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	p := newProcessor(t, nil)
	var out bytes.Buffer
	result, err := p.ProcessFile(context.Background(), path, &out)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if result.TotalRecords != 2 || result.Substitutions != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	outs := decodeOutputs(t, out.Bytes())
	if outs[0].ID != "p1" || outs[0].Body != "ask Alex Carter" {
		t.Errorf("first output = %+v", outs[0])
	}
}

func TestProcessWarnFirstDecision(t *testing.T) {
	orch := pipeline.New(pipeline.Deps{}, pipeline.Options{}, zap.NewNop())
	orch.Reload(pipeline.Snapshot{Vault: keyvault.Policy{Enabled: true, Mode: keyvault.ModeWarnFirst}})
	records := []Record{{Body: `{"prompt":"` + openAIKey + `"}`}}

	t.Run("held", func(t *testing.T) {
		var out bytes.Buffer
		result, err := NewProcessor(orch, nil, zap.NewNop()).Process(context.Background(), records, &out)
		if err != nil {
			t.Fatal(err)
		}
		if result.Held != 1 {
			t.Errorf("held = %d", result.Held)
		}
		if o := decodeOutputs(t, out.Bytes())[0]; !o.NeedsConfirmation {
			t.Errorf("output = %+v", o)
		}
	})

	t.Run("redact", func(t *testing.T) {
		var out bytes.Buffer
		p := NewProcessor(orch, &Config{Decision: string(pipeline.DecisionRedact)}, zap.NewNop())
		if _, err := p.Process(context.Background(), records, &out); err != nil {
			t.Fatal(err)
		}
		if o := decodeOutputs(t, out.Bytes())[0]; o.Body != `{"prompt":"[OPENAI_KEY]"}` {
			t.Errorf("output = %+v", o)
		}
	})
}

func TestProcessCancelled(t *testing.T) {
	p := newProcessor(t, &Config{Workers: 1, QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := make([]Record, 50)
	if _, err := p.Process(ctx, records, &bytes.Buffer{}); err == nil {
		t.Fatal("expected context error")
	}
}
