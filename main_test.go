package main

import (
	"io"
	"strings"
	"testing"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()

	want := []string{"serve", "subtitles", "summarize", "mindmap", "models", "stats"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("expected %q to be registered: %v", name, err)
		}
	}

	subtitles, _, _ := root.Find([]string{"subtitles"})
	for _, flag := range []string{"lang", "time", "list"} {
		if subtitles.Flags().Lookup(flag) == nil {
			t.Errorf("subtitles: missing --%s", flag)
		}
	}

	mindmap, _, _ := root.Find([]string{"mindmap"})
	for _, flag := range []string{"video", "lang", "format", "output"} {
		if mindmap.Flags().Lookup(flag) == nil {
			t.Errorf("mindmap: missing --%s", flag)
		}
	}
}

func TestMindMapCommandRejectsAllFormat(t *testing.T) {
	root := newRootCommand()
	root.PersistentPreRunE = nil
	root.SetArgs([]string{"mindmap", "--format", "all"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "choose one") {
		t.Errorf("expected a format error, got %v", err)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Model", "Runs"},
		[][]string{{"DeepSeek V3", "12"}, {"Qwen"}},
		[]columnAlignment{alignLeft, alignRight},
	)

	for _, s := range []string{"MODEL", "RUNS", "DeepSeek V3", "12", "Qwen"} {
		if !strings.Contains(out, s) {
			t.Errorf("expected %q in table:\n%s", s, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestRenderSummaryStats(t *testing.T) {
	out := renderSummaryStats(&models.SummaryResult{
		State: models.SummaryDegraded,
		Stats: models.SummaryStats{
			RunID:           "run-1",
			Model:           "DeepSeek V3",
			Chunks:          3,
			ProcessedChunks: 2,
		},
	})
	for _, s := range []string{"run-1", "degraded", "2/3"} {
		if !strings.Contains(out, s) {
			t.Errorf("expected %q in stats:\n%s", s, out)
		}
	}
}
