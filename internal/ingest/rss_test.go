package ingest

import (
	"strings"
	"testing"

	"github.com/mmcdole/gofeed"

	"github.com/augmenthq/compete/internal/models"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
  <title>Acme Engineering Blog</title>
  <item>
    <title>Launching Widgets 2.0</title>
    <link>https://acme.example.com/blog/widgets-2</link>
    <guid>acme-widgets-2</guid>
    <description>&lt;p&gt;Today we are launching &lt;b&gt;Widgets 2.0&lt;/b&gt;.&lt;/p&gt;</description>
    <pubDate>Mon, 12 Jan 2026 09:00:00 +0000</pubDate>
    <category>product</category>
  </item>
  <item>
    <title>No GUID Post</title>
    <link>https://acme.example.com/blog/no-guid</link>
  </item>
  <item>
    <title>Bare Title Only</title>
  </item>
</channel>
</rss>`

func TestFeedEntryConversion(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(sampleFeed)
	if err != nil {
		t.Fatalf("failed to parse fixture feed: %v", err)
	}
	if len(feed.Items) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(feed.Items))
	}

	source := &models.Source{
		ID:   "src-1",
		Type: models.SourceTypeRSS,
		RSS:  &models.RSSConfig{FeedURL: "https://acme.example.com/feed"},
	}

	first := feedEntryToItem(source, feed.Items[0])
	if first.GUID != "acme-widgets-2" {
		t.Errorf("expected feed GUID, got %q", first.GUID)
	}
	if first.SourceID != "src-1" {
		t.Errorf("wrong source id: %q", first.SourceID)
	}
	if first.PublishedAt == nil {
		t.Error("expected published date to be parsed")
	}
	if strings.Contains(first.Content, "<") {
		t.Errorf("markup not stripped from content: %q", first.Content)
	}
	if !strings.Contains(first.Content, "Widgets 2.0") {
		t.Errorf("content lost during cleanup: %q", first.Content)
	}

	second := feedEntryToItem(source, feed.Items[1])
	if second.GUID != "https://acme.example.com/blog/no-guid" {
		t.Errorf("expected link fallback GUID, got %q", second.GUID)
	}

	third := feedEntryToItem(source, feed.Items[2])
	if third.GUID == "" {
		t.Error("expected hashed fallback GUID for entry with no guid or link")
	}
	if third.GUID == feedEntryToItem(source, feed.Items[1]).GUID {
		t.Error("distinct entries produced the same GUID")
	}
	// Same entry must hash to the same GUID on every fetch.
	if third.GUID != feedEntryToItem(source, feed.Items[2]).GUID {
		t.Error("hashed GUID is not stable across fetches")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<p>one</p><p>two</p>", "one\n\ntwo"},
		{"a <a href=\"x\">link</a> here", "a link here"},
		{"  padded  ", "padded"},
		{"lines\n\n\n\n\ncollapse", "lines\n\ncollapse"},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
