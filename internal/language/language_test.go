package language

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/workspace/main.py", "python"},
		{"/src/server.go", "go"},
		{"/app/index.ts", "typescript"},
		{"/README.md", "markdown"},
		{"/config.yaml", "yaml"},
		{"/notes.txt", "plaintext"},
		{"/binary.weirdext", "plaintext"},
	}
	for _, tc := range cases {
		if got := Detect(tc.path); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestIsHighValue(t *testing.T) {
	for _, p := range []string{"/a/main.py", "/b/lib.go", "/c/config.yaml", "/README.md"} {
		if !IsHighValue(p) {
			t.Errorf("IsHighValue(%q) = false, want true", p)
		}
	}
	for _, p := range []string{"/data.bin", "/image.png", "/noext"} {
		if IsHighValue(p) {
			t.Errorf("IsHighValue(%q) = true, want false", p)
		}
	}
}
