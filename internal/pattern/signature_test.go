package pattern

import "testing"

func TestSignature_Normalizes(t *testing.T) {
	got := Signature("  Go  Service ", "", "API")
	if got != "go service|api" {
		t.Errorf("expected %q, got %q", "go service|api", got)
	}
}

func TestContextSignature_OrderIndependent(t *testing.T) {
	a := ContextSignature("new-endpoint", map[string]string{
		"project_type":  "Go",
		"file_category": "handler",
	})
	b := ContextSignature("New-Endpoint", map[string]string{
		"file_category": "handler",
		"project_type":  "go",
	})
	if a != b {
		t.Errorf("expected equal signatures, got %q and %q", a, b)
	}
	if a != "new-endpoint|file_category=handler|project_type=go" {
		t.Errorf("unexpected signature %q", a)
	}
}

func TestContextSignature_SkipsEmptyValues(t *testing.T) {
	got := ContextSignature("tmpl", map[string]string{"lang": "", "team": "core"})
	if got != "tmpl|team=core" {
		t.Errorf("expected %q, got %q", "tmpl|team=core", got)
	}
}

func TestNormalizeSignature(t *testing.T) {
	if got := NormalizeSignature(" TMPL | Team=Core "); got != "tmpl|team=core" {
		t.Errorf("expected %q, got %q", "tmpl|team=core", got)
	}
}
