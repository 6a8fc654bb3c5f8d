package diffview

import "testing"

func TestEscape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		tab  int
		want string
	}{
		{"plain", 8, "plain"},
		{"a<b>&c", 8, "a&lt;b&gt;&amp;c"},
		{"\tx", 4, "&nbsp;&nbsp;&nbsp;&nbsp;x"},
		{"ab\tc", 4, "ab&nbsp;&nbsp;c"},
		{`say "hi"`, 8, "say&nbsp;&#34;hi&#34;"},
	}
	for _, tt := range tests {
		if got := Escape(tt.in, tt.tab); got != tt.want {
			t.Fatalf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandTabsDefaultsWidth(t *testing.T) {
	t.Parallel()
	if got := ExpandTabs("\t", 0); got != "        " {
		t.Fatalf("ExpandTabs() = %q", got)
	}
}
