package service

import "testing"

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	vars := map[string]string{
		"name":    "João Silva",
		"company": "Green Farms",
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain substitution", "Hello {{company}}, I am {{name}}.", "Hello Green Farms, I am João Silva."},
		{"whitespace inside braces", "Hi {{ name }}!", "Hi João Silva!"},
		{"unknown placeholder kept", "ETA: {{eta_number}}", "ETA: {{eta_number}}"},
		{"no placeholders", "just text", "just text"},
		{"repeated placeholder", "{{name}} / {{name}}", "João Silva / João Silva"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := RenderTemplate(tc.in, vars); got != tc.want {
				t.Fatalf("RenderTemplate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestHTMLBody(t *testing.T) {
	t.Parallel()

	if got := HTMLBody("line one\nline two"); got != "line one<br>line two" {
		t.Fatalf("unexpected conversion: %q", got)
	}
	if got := HTMLBody("a\r\nb"); got != "a<br>b" {
		t.Fatalf("CRLF should normalize first: %q", got)
	}
	if got := HTMLBody("no newline"); got != "no newline" {
		t.Fatalf("text without newlines should pass through: %q", got)
	}
}
