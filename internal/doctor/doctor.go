// Package doctor validates branchguard configuration and credentials.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/branchguard/branchguard/internal/config"
	"github.com/branchguard/branchguard/internal/githubapp"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration, including checks that go beyond
// config.Validate: it reads the private key from disk and inspects the
// state directory.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateGitHubConfig(r)
	d.validateCredentials(r)
	d.validateState(r)
	d.warnMissingWebhookSecret(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.Service.Listen == "" {
		d.addError(r, "service", "service.listen", "listen address is required")
	} else if _, _, err := net.SplitHostPort(d.cfg.Service.Listen); err != nil {
		d.addError(r, "service", "service.listen",
			fmt.Sprintf("invalid listen address %q: %v", d.cfg.Service.Listen, err))
	}

	switch strings.ToLower(d.cfg.Service.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q (expected debug, info, warn, or error)", d.cfg.Service.LogLevel))
	}
}

// validateGitHubConfig checks the API client settings without touching the
// network.
func (d *Doctor) validateGitHubConfig(r *Result) {
	if d.cfg.GitHubAPI.Organization == "" {
		d.addError(r, "github", "github_api.organization", "organization is required")
	}
	if d.cfg.GitHubAPI.AppID <= 0 {
		d.addError(r, "github", "github_api.app_id", "app_id must be a positive GitHub App id")
	}

	if d.cfg.GitHubAPI.BaseURL == "" {
		d.addError(r, "github", "github_api.base_url", "base_url is required")
		return
	}
	u, err := url.Parse(d.cfg.GitHubAPI.BaseURL)
	if err != nil {
		d.addError(r, "github", "github_api.base_url",
			fmt.Sprintf("invalid base_url %q: %v", d.cfg.GitHubAPI.BaseURL, err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		d.addError(r, "github", "github_api.base_url",
			fmt.Sprintf("base_url scheme must be http or https, got %q", u.Scheme))
	}
	if u.Scheme == "http" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		d.addWarning(r, "github", "github_api.base_url",
			"base_url uses plain http to a non-local host; app tokens will travel unencrypted")
	}
}

// validateCredentials reads and parses the App's private key file.
func (d *Doctor) validateCredentials(r *Result) {
	path := d.cfg.GitHubAPI.PrivateKeyPath
	if path == "" {
		d.addError(r, "credentials", "github_api.private_key_path", "private_key_path is required")
		return
	}
	if _, err := githubapp.LoadAppAuth(d.cfg.GitHubAPI.AppID, path); err != nil {
		d.addError(r, "credentials", "github_api.private_key_path",
			fmt.Sprintf("cannot use private key at %q: %v", path, err))
	}
}

// validateState checks that the delivery ledger has somewhere to live.
func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	dir := filepath.Dir(d.cfg.State.Path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addWarning(r, "state", "state.path",
			fmt.Sprintf("directory %q does not exist yet and will be created on start", dir))
	case err != nil:
		d.addError(r, "state", "state.path",
			fmt.Sprintf("cannot inspect directory %q: %v", dir, err))
	case !info.IsDir():
		d.addError(r, "state", "state.path",
			fmt.Sprintf("%q is not a directory", dir))
	}
}

// warnMissingWebhookSecret flags the signature verification relaxation.
func (d *Doctor) warnMissingWebhookSecret(r *Result) {
	if d.cfg.GitHubAPI.WebhookSecret == "" {
		d.addWarning(r, "webhook", "github_api.webhook_secret",
			"no webhook secret configured; payload signatures will not be verified")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
