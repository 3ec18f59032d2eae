package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/wearwatch/catalog-monitor/internal/llm"
	"github.com/wearwatch/catalog-monitor/internal/vision"
)

// viewportFractions are the scroll positions captured for single-product
// pages beyond the full-page shot; size charts and detail accordions render
// below the fold.
var viewportFractions = []float64{0.35, 0.7}

// captureProductShots takes the single-product screenshot set: one
// full-page capture plus viewport captures at fixed scroll fractions.
// Every image is fitted to the vision model's dimension cap.
func captureProductShots(page *rod.Page) ([]llm.Image, error) {
	var shots []llm.Image

	full, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: full-page screenshot: %w", err)
	}
	fitted, err := vision.FitImage(full)
	if err != nil {
		return nil, err
	}
	shots = append(shots, llm.Image{MediaType: "image/png", Data: fitted})

	for _, fraction := range viewportFractions {
		if _, err := page.Eval(`(f) => {
			window.scrollTo(0, document.body.scrollHeight * f);
		}`, fraction); err != nil {
			continue
		}
		time.Sleep(400 * time.Millisecond)

		shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			continue
		}
		fitted, err := vision.FitImage(shot)
		if err != nil {
			continue
		}
		shots = append(shots, llm.Image{MediaType: "image/png", Data: fitted})
	}
	return shots, nil
}

// captureCatalogShot scrolls to the top and takes one full-page screenshot.
// The full-page capture already contains every rendered card, so viewport
// scrolling buys nothing on listings.
func captureCatalogShot(page *rod.Page) (llm.Image, error) {
	if _, err := page.Eval(`() => window.scrollTo(0, 0)`); err != nil {
		return llm.Image{}, fmt.Errorf("browser: scroll to top: %w", err)
	}
	time.Sleep(300 * time.Millisecond)

	shot, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return llm.Image{}, fmt.Errorf("browser: catalog screenshot: %w", err)
	}
	fitted, err := vision.FitImage(shot)
	if err != nil {
		return llm.Image{}, err
	}
	return llm.Image{MediaType: "image/png", Data: fitted}, nil
}
