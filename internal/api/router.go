package api

import (
	"log/slog"
	"net/http"

	"github.com/augmenthq/compete/internal/auth"
)

// Handlers collects the per-resource handlers the router wires up.
type Handlers struct {
	Auth        *AuthHandler
	Sources     *SourceHandler
	System      *SystemHandler
	Cards       *CardHandler
	Briefings   *BriefingHandler
	Content     *ContentHandler
	Competitors *CompetitorHandler
	Suggestions *SuggestionHandler
}

// SetupRoutes configures all API routes. Everything under /api except the
// login endpoint requires a valid token.
func SetupRoutes(mux *http.ServeMux, h Handlers, authConfig auth.Config, logger *slog.Logger) {
	authMiddleware := auth.Middleware(authConfig)
	protected := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authMiddleware(fn).ServeHTTP(w, r)
		}
	}

	// Authentication (public)
	mux.HandleFunc("/api/auth/login", h.Auth.Login)

	// Sources
	mux.HandleFunc("/api/sources", protected(h.Sources.Collection))
	mux.HandleFunc("/api/sources/test-url", protected(h.Sources.TestURL))
	mux.HandleFunc("/api/sources/validate-twitter", protected(h.Sources.ValidateTwitter))
	mux.HandleFunc("/api/sources/", protected(h.Sources.Item))

	// System operations
	mux.HandleFunc("/api/system/check", protected(h.System.Check))
	mux.HandleFunc("/api/system/check-runs", protected(h.System.CheckRuns))
	mux.HandleFunc("/api/system/check-runs/", protected(h.System.CheckRuns))
	mux.HandleFunc("/api/system/review-profiles", protected(h.System.ReviewProfiles))

	// Analysis cards
	mux.HandleFunc("/api/cards", protected(h.Cards.List))
	mux.HandleFunc("/api/cards/", protected(h.Cards.Item))

	// Briefings
	mux.HandleFunc("/api/briefings", protected(h.Briefings.List))
	mux.HandleFunc("/api/briefings/generate", protected(h.Briefings.Generate))
	mux.HandleFunc("/api/briefings/", protected(h.Briefings.Item))

	// Generated content
	mux.HandleFunc("/api/content/templates", protected(h.Content.Templates))
	mux.HandleFunc("/api/content/templates/", protected(h.Content.Templates))
	mux.HandleFunc("/api/content/outputs", protected(h.Content.Outputs))
	mux.HandleFunc("/api/content/outputs/", protected(h.Content.OutputItem))
	mux.HandleFunc("/api/content/generate", protected(h.Content.Generate))
	mux.HandleFunc("/api/content/stale", protected(h.Content.Stale))

	// Competitors
	mux.HandleFunc("/api/competitors", protected(h.Competitors.Collection))
	mux.HandleFunc("/api/competitors/", protected(h.Competitors.Item))

	// Profile-update suggestions
	mux.HandleFunc("/api/suggestions", protected(h.Suggestions.List))
	mux.HandleFunc("/api/suggestions/", protected(h.Suggestions.Item))

	logger.Info("API routes configured")
}
