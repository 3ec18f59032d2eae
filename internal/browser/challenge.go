package browser

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// challengeKind classifies an interactive anti-bot gate.
type challengeKind string

const (
	challengeNone         challengeKind = "none"
	challengePressAndHold challengeKind = "press_and_hold"
	challengeCheckbox     challengeKind = "checkbox"
	challengeAutoResolve  challengeKind = "auto"
)

type challengeDetection struct {
	kind     challengeKind
	selector string
}

// challengeSelectors map known gate widgets to the interaction they need.
// PerimeterX wants a long press at the button center; Cloudflare widgets
// want a single click; JS interstitials resolve on their own.
var challengeSelectors = []challengeDetection{
	{challengePressAndHold, "#px-captcha"},
	{challengePressAndHold, `[id*="px-captcha"]`},
	{challengePressAndHold, `button[class*="press"][class*="hold"]`},
	{challengeCheckbox, `.cf-turnstile`},
	{challengeCheckbox, `iframe[src*="challenges.cloudflare.com"]`},
	{challengeCheckbox, `.h-captcha`},
	{challengeCheckbox, `.g-recaptcha`},
}

var challengeTitles = []string{
	"just a moment",
	"checking your browser",
	"verify you are human",
	"access to this page has been denied",
	"one more step",
}

// detectChallenge looks for an anti-bot gate on the current page.
func detectChallenge(page *rod.Page) challengeDetection {
	for _, candidate := range challengeSelectors {
		if has, _, _ := page.Has(candidate.selector); has {
			return candidate
		}
	}
	if info, err := page.Info(); err == nil {
		title := strings.ToLower(info.Title)
		for _, pattern := range challengeTitles {
			if strings.Contains(title, pattern) {
				return challengeDetection{kind: challengeAutoResolve}
			}
		}
	}
	return challengeDetection{kind: challengeNone}
}

// handleChallenge attempts a scripted dismissal. Returns true when the gate
// cleared; the caller escalates or fails the page otherwise.
func handleChallenge(ctx context.Context, page *rod.Page, detection challengeDetection, logger *slog.Logger) bool {
	switch detection.kind {
	case challengeNone:
		return true
	case challengeAutoResolve:
		return waitChallengeGone(ctx, page, 20*time.Second)
	case challengePressAndHold:
		if err := pressAndHold(page, detection.selector); err != nil {
			logger.Warn("press-and-hold failed", "selector", detection.selector, "error", err)
			return false
		}
		return waitChallengeGone(ctx, page, 10*time.Second)
	case challengeCheckbox:
		el, err := page.Timeout(5 * time.Second).Element(detection.selector)
		if err != nil {
			return false
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			logger.Warn("challenge click failed", "selector", detection.selector, "error", err)
			return false
		}
		return waitChallengeGone(ctx, page, 15*time.Second)
	}
	return false
}

// pressAndHold presses the mouse at the widget's center and holds for about
// five seconds, with human-looking jitter on both position and duration.
func pressAndHold(page *rod.Page, selector string) error {
	el, err := page.Timeout(5 * time.Second).Element(selector)
	if err != nil {
		return err
	}
	shape, err := el.Shape()
	if err != nil {
		return err
	}
	box := shape.Box()

	x := box.X + box.Width/2 + (rand.Float64()-0.5)*box.Width/5
	y := box.Y + box.Height/2 + (rand.Float64()-0.5)*box.Height/5

	mouse := page.Mouse
	if err := mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return err
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	time.Sleep(holdDuration())
	return mouse.Up(proto.InputMouseButtonLeft, 1)
}

// holdDuration is ~5s with jitter; PerimeterX rejects suspiciously exact
// holds.
func holdDuration() time.Duration {
	return time.Duration(4500+rand.Intn(1500)) * time.Millisecond
}

func waitChallengeGone(ctx context.Context, page *rod.Page, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		if detectChallenge(page).kind == challengeNone {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}
