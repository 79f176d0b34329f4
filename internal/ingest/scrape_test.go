package ingest

import (
	"testing"
)

const listingPage = `<html><body>
<nav>
  <a href="/blog">Blog</a>
  <a href="/login">Log in</a>
  <a href="mailto:hello@acme.example.com">Contact</a>
</nav>
<main>
  <a href="/blog/widgets-2">Launching Widgets 2.0</a>
  <a href="/blog/widgets-2#comments">Comments</a>
  <a href="/blog/widgets-2?utm_source=home">Launching Widgets 2.0</a>
  <a href="https://acme.example.com/news/q3-results/">Q3 results</a>
  <a href="https://other.example.com/blog/stolen-post">External</a>
  <a href="/blog/tag/releases">releases</a>
  <a href="/pricing">Pricing</a>
</main>
<div class="cards">
  <div class="card"><a href="/research/widgets-deep-dive">Deep dive</a></div>
</div>
</body></html>`

func TestExtractArticleLinks_Heuristic(t *testing.T) {
	links, err := ExtractArticleLinks(listingPage, "https://acme.example.com/blog", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]bool{}
	for _, l := range links {
		got[l.URL] = true
	}

	want := []string{
		"https://acme.example.com/blog/widgets-2",
		"https://acme.example.com/news/q3-results",
	}
	for _, u := range want {
		if !got[u] {
			t.Errorf("expected link %s, got %v", u, links)
		}
	}
	if len(links) != len(want) {
		t.Errorf("expected %d links, got %d: %v", len(want), len(links), links)
	}

	for _, l := range links {
		if l.URL == "https://acme.example.com/blog/widgets-2" && l.Title != "Launching Widgets 2.0" {
			t.Errorf("wrong title: %q", l.Title)
		}
	}
}

func TestExtractArticleLinks_Selector(t *testing.T) {
	links, err := ExtractArticleLinks(listingPage, "https://acme.example.com/blog", ".card a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d: %v", len(links), links)
	}
	// Selector-scoped links skip the path heuristic entirely.
	if links[0].URL != "https://acme.example.com/research/widgets-deep-dive" {
		t.Errorf("unexpected link: %s", links[0].URL)
	}
}

func TestExtractArticleLinks_NoneIsSuccess(t *testing.T) {
	links, err := ExtractArticleLinks("<html><body><p>nothing here</p></body></html>",
		"https://acme.example.com/blog", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestExtractArticleLinks_DropsQueryAndFragment(t *testing.T) {
	page := `<a href="/news/launch?ref=tw#top">Launch</a>`
	links, err := ExtractArticleLinks(page, "https://acme.example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 || links[0].URL != "https://acme.example.com/news/launch" {
		t.Errorf("canonicalization failed: %v", links)
	}
}
