package doctor

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/branchguard/branchguard/internal/config"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "app.pem")
	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func validConfig(t *testing.T) *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{
			Name:     "test",
			Listen:   "127.0.0.1:2342",
			LogLevel: "info",
		},
		GitHubAPI: config.GitHubAPIConfig{
			BaseURL:        "https://api.github.com/",
			Organization:   "acme",
			PrivateKeyPath: writeTestKey(t),
			AppID:          1234,
			WebhookSecret:  "s3cret",
		},
		State: config.StateConfig{Path: filepath.Join(t.TempDir(), "bg.db")},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_BadListenAddress(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Service.Listen = "not-an-address"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertIssue(t, r.Errors, "service", "service.listen")
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Service.LogLevel = "verbose"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertIssue(t, r.Errors, "service", "service.log_level")
}

func TestValidate_MissingOrganization(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.GitHubAPI.Organization = ""
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertIssue(t, r.Errors, "github", "github_api.organization")
}

func TestValidate_BadBaseURLScheme(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.GitHubAPI.BaseURL = "ftp://github.example/"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertIssue(t, r.Errors, "github", "github_api.base_url")
}

func TestValidate_PlainHTTPWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.GitHubAPI.BaseURL = "http://github.internal/"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertIssue(t, r.Warnings, "github", "github_api.base_url")
}

func TestValidate_MissingKeyFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.GitHubAPI.PrivateKeyPath = filepath.Join(t.TempDir(), "nope.pem")
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertIssue(t, r.Errors, "credentials", "github_api.private_key_path")
}

func TestValidate_GarbageKeyFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	path := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(path, []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.GitHubAPI.PrivateKeyPath = path
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertIssue(t, r.Errors, "credentials", "github_api.private_key_path")
}

func TestValidate_MissingWebhookSecretWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.GitHubAPI.WebhookSecret = ""
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertIssue(t, r.Warnings, "webhook", "github_api.webhook_secret")
}

func TestValidate_MissingStateDirWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.State.Path = filepath.Join(t.TempDir(), "sub", "dir", "bg.db")
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertIssue(t, r.Warnings, "state", "state.path")
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.GitHubAPI.Organization = ""
	cfg.GitHubAPI.WebhookSecret = ""
	out := FormatHuman(New(cfg).Validate())
	if !strings.Contains(out, "Configuration invalid") {
		t.Fatalf("missing invalid header: %q", out)
	}
	if !strings.Contains(out, "ERROR [github]") || !strings.Contains(out, "WARN  [webhook]") {
		t.Fatalf("missing issue lines: %q", out)
	}
}

func TestFormatHuman_Clean(t *testing.T) {
	t.Parallel()
	out := FormatHuman(New(validConfig(t)).Validate())
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func assertIssue(t *testing.T, issues []Issue, category, field string) {
	t.Helper()
	for _, issue := range issues {
		if issue.Category == category && issue.Field == field {
			return
		}
	}
	t.Fatalf("no issue with category %q and field %q in %v", category, field, issues)
}
