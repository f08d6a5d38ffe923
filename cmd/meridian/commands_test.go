package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvoss/meridian/internal/stream"
)

func TestAskCommand_MissingProject(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask", "why did churn spike?"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --project")
	}
	if !strings.Contains(err.Error(), "project") {
		t.Errorf("error = %q, want it to mention the project flag", err.Error())
	}
}

func TestFollowupCommand_MissingQuestion(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"followup", "q-1"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing question")
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("quarterly notes"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	files, err := readFiles([]string{path})
	if err != nil {
		t.Fatalf("readFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "notes.txt" {
		t.Errorf("files = %+v", files)
	}
	if string(files[0].Data) != "quarterly notes" {
		t.Errorf("data = %q", files[0].Data)
	}
}

func TestReadFiles_Missing(t *testing.T) {
	if _, err := readFiles([]string{"/no/such/file.pdf"}); err == nil {
		t.Fatal("readFiles accepted a missing path")
	}
}

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":            "report.pdf",
		"./data/report.pdf":     "report.pdf",
		`C:\docs\report.pdf`:    "report.pdf",
		"/abs/path/to/file.csv": "file.csv",
	}
	for in, want := range cases {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorRed, "fail"); got != "fail" {
		t.Errorf("colorize with noColor=true = %q", got)
	}

	noColor = false
	if got := colorize(colorRed, "fail"); !strings.Contains(got, "\033[31m") {
		t.Errorf("colorize with noColor=false = %q, want ANSI codes", got)
	}
}

func TestRenderSteps(t *testing.T) {
	out := renderSteps([]stream.StepRecord{
		{Agent: "researcher", Action: "gather market data", Status: "done", Tokens: 320},
		{Agent: "analyst", Action: "model scenario", Status: "done"},
	})
	for _, want := range []string{"researcher", "analyst", "320", "Agent"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderResult_Failed(t *testing.T) {
	err := renderResult(&stream.StatusEvent{
		QueryID: "q-1",
		Status:  stream.StatusFailed,
		Message: "did not converge",
	})
	if err == nil || !strings.Contains(err.Error(), "did not converge") {
		t.Errorf("err = %v", err)
	}
}

func TestRenderResult_Completed(t *testing.T) {
	if err := renderResult(&stream.StatusEvent{
		QueryID: "q-1",
		Status:  stream.StatusCompleted,
		Result:  json.RawMessage(`{"sections": []}`),
	}); err != nil {
		t.Errorf("renderResult: %v", err)
	}
}
