// Package browser is the browser extraction tower: stealth headless Chrome,
// screenshots for the vision model, and DOM reads for cross-validation.
// One persistent profile directory per retailer keeps cookies and anti-bot
// clearances across runs, so pages for a retailer are always driven by at
// most one browser at a time.
package browser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Launcher creates per-retailer browser sessions.
type Launcher struct {
	profileRoot string
	chromePath  string
	logger      *slog.Logger
}

// NewLauncher creates a launcher. Profile directories are created under
// profileRoot on first use.
func NewLauncher(profileRoot, chromePath string, logger *slog.Logger) *Launcher {
	return &Launcher{
		profileRoot: profileRoot,
		chromePath:  chromePath,
		logger:      logger.With("component", "browser"),
	}
}

// Session is one connected browser bound to a retailer profile.
type Session struct {
	Browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger
}

// Launch starts a browser on the retailer's persistent profile.
func (l *Launcher) Launch(retailerID string) (*Session, error) {
	profile := filepath.Join(l.profileRoot, retailerID)
	if err := os.MkdirAll(profile, 0o755); err != nil {
		return nil, fmt.Errorf("browser: profile dir: %w", err)
	}

	cmd := launcher.New().
		Headless(true).
		UserDataDir(profile).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")
	if l.chromePath != "" {
		cmd = cmd.Bin(l.chromePath)
	}

	controlURL, err := cmd.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		cmd.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	l.logger.Debug("browser launched", "retailer", retailerID, "profile", profile)
	return &Session{Browser: b, launcher: cmd, logger: l.logger}, nil
}

// NewPage opens a stealth page with the evasion script injected before any
// site code runs.
func (s *Session) NewPage() (*rod.Page, error) {
	page, err := stealth.Page(s.Browser)
	if err != nil {
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(evasionScript); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: inject evasion script: %w", err)
	}
	return page, nil
}

// Close shuts the browser down. The profile directory survives for the next
// session.
func (s *Session) Close() {
	if err := s.Browser.Close(); err != nil {
		s.logger.Warn("browser close failed", "error", err)
	}
	s.launcher.Cleanup()
}

// Restart tears the session down and relaunches on the same profile, used
// between extraction attempts to get a clean rendering context.
func (l *Launcher) Restart(retailerID string, s *Session) (*Session, error) {
	s.Close()
	time.Sleep(500 * time.Millisecond)
	return l.Launch(retailerID)
}
