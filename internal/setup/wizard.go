package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/placesync/internal/config"
)

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer
	path   string
}

// NewWizard creates a Wizard that writes its result to path.
func NewWizard(r io.Reader, w io.Writer, path string, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		logger: logger,
		w:      w,
		path:   path,
	}
}

// Run executes the interactive setup wizard and returns the saved config, or
// nil when the user kept an existing file.
func (wiz *Wizard) Run(_ context.Context) (*config.Config, error) {
	fmt.Fprintf(wiz.w, "\nWelcome to placesync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes %s.\n\n", wiz.path)

	if _, statErr := os.Stat(wiz.path); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.path)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil, nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	cfg := &config.Config{}

	fmt.Fprintf(wiz.w, "Step 1/3: Firebase project\n")
	cfg.ProjectID = wiz.prompt.String("Project ID", "")
	cfg.APIKey = wiz.prompt.Secret("Web API key")
	cfg.CredentialsFile = wiz.prompt.Optional("Service account JSON file")
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			wiz.logger.Warn("credentials file not readable", "path", cfg.CredentialsFile, "error", err)
			fmt.Fprintf(wiz.w, "  ! %s is not readable yet, keeping it anyway.\n", cfg.CredentialsFile)
		}
	}
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 2/3: Behaviour\n")
	cfg.RefreshInterval = wiz.prompt.Duration(
		"Reload locations every (0 to disable, 30s to 24h)", 0, checkRefreshInterval)
	cfg.PurgeDependents = wiz.prompt.Confirm("Delete a user's favorites and comments with their account?", true)
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 3/3: Save configuration\n")
	if err := config.Save(wiz.path, cfg); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  Config written to %s\n\n", wiz.path)
	fmt.Fprintf(wiz.w, "Next steps:\n")
	fmt.Fprintf(wiz.w, "  placesync categories            list location categories\n")
	fmt.Fprintf(wiz.w, "  placesync signup --email ...    create an account\n\n")

	return cfg, nil
}

func checkRefreshInterval(d time.Duration) error {
	if d == 0 {
		return nil
	}
	if d < config.MinRefreshInterval || d > config.MaxRefreshInterval {
		return fmt.Errorf("must be 0 or between %v and %v", config.MinRefreshInterval, config.MaxRefreshInterval)
	}
	return nil
}
