package artifact

import "testing"

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"docs/design.md", "docs/design.md", true},
		{"docs/design.md", "docs/other.md", false},
		{"src/**", "src/main.go", true},
		{"src/**", "src/token/token.go", true},
		{"src/**", "lib/main.go", false},
		{"src/**", "src", false},
		{"**/*.md", "CHANGELOG.md", true},
		{"**/*.md", "docs/deep/notes.md", true},
		{"**/*.md", "src/main.go", false},
		{"docs/*.md", "docs/design.md", true},
		{"docs/*.md", "docs/deep/notes.md", false},
		{"reports/*-report.md", "reports/test-report.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.rel, func(t *testing.T) {
			if got := matchPattern(tt.pattern, tt.rel); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.rel, got, tt.want)
			}
		})
	}
}

func TestPatternRoot(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"src/**", "src"},
		{"docs/design.md", "docs"},
		{"**/*.md", ""},
		{"reports/sub/*.md", "reports/sub"},
	}

	for _, tt := range tests {
		if got := patternRoot(tt.pattern); got != tt.want {
			t.Errorf("patternRoot(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
