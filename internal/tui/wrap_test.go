package tui

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestWrapByDisplayWidth_ASCII(t *testing.T) {
	lines := wrapByDisplayWidth("abcdefghijklmnopqrstuvwxyz", 10)
	if len(lines) < 3 {
		t.Fatalf("expected wrapped lines >= 3, got %d (%v)", len(lines), lines)
	}
	for _, ln := range lines {
		if runewidth.StringWidth(ln) > 10 {
			t.Fatalf("line width exceeds 10: %q", ln)
		}
	}
}

func TestWrapByDisplayWidth_CJK(t *testing.T) {
	lines := wrapByDisplayWidth("这是一个很长很长的中文输入内容用于测试自动换行", 12)
	if len(lines) < 2 {
		t.Fatalf("expected CJK text to wrap, got %v", lines)
	}
	for _, ln := range lines {
		if runewidth.StringWidth(ln) > 12 {
			t.Fatalf("line width exceeds 12: %q", ln)
		}
	}
}

func TestWrapByDisplayWidth_PreservesBlankLines(t *testing.T) {
	lines := wrapByDisplayWidth("first\n\nsecond", 40)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %v", lines)
	}
	if lines[1] != "" {
		t.Fatalf("expected blank middle line, got %q", lines[1])
	}
}
