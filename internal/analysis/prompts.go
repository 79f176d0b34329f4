package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/augmenthq/compete/internal/models"
)

// maxItemContentChars bounds how much item text goes into one prompt.
const maxItemContentChars = 8000

const systemPrompt = `You are a competitive intelligence analyst. You receive one piece of
content about a competitor and decide whether it describes a competitively
significant event. Respond with a single JSON object and nothing else:

{
  "relevant": true|false,
  "reason": "why not, when relevant is false",
  "event_type": "new_feature|product_announcement|partnership|acquisition|funding|pricing_change|leadership_change|expansion|other",
  "priority": "red|yellow|green",
  "title": "short headline",
  "summary": "2-4 sentence factual summary",
  "impact_assessment": "what this means for us",
  "suggested_counter_moves": "concrete responses to consider",
  "competitors": ["names of tracked competitors this concerns"],
  "suggested_new_competitor": "company name, only when the content concerns a relevant company we do not track"
}

Priority: red = needs attention this week, yellow = worth watching,
green = background noise. Only name competitors from the tracked list unless
suggesting a new one.`

// BuildItemPrompt assembles the user prompt for one item.
func BuildItemPrompt(item *models.Item, source *models.Source, self *models.SelfProfile, competitors []models.Competitor) string {
	var b strings.Builder

	b.WriteString("## Our company\n")
	if self != nil {
		writeProfileLine(&b, "Overview", self.Overview)
		writeProfileLine(&b, "Products", self.Products)
		writeProfileLine(&b, "Positioning", self.Positioning)
		writeProfileLine(&b, "Differentiators", self.Differentiators)
		writeProfileLine(&b, "Target market", self.TargetMarket)
	} else {
		b.WriteString("(no profile on file)\n")
	}

	b.WriteString("\n## Tracked competitors\n")
	if len(competitors) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, c := range competitors {
		line := c.Name
		if c.Overview != "" {
			line += ": " + firstSentence(c.Overview)
		}
		b.WriteString("- " + line + "\n")
	}

	b.WriteString("\n## Content\n")
	b.WriteString(describeItem(item, source))
	return b.String()
}

// describeItem renders the item itself, synthesizing a headline for tweets
// and bounding the content length.
func describeItem(item *models.Item, source *models.Source) string {
	var b strings.Builder

	title := item.Title
	if title == "" && source != nil && source.Type == models.SourceTypeTwitter {
		author := item.Author
		if author == "" && source.Twitter != nil {
			author = "@" + source.Twitter.Username
		}
		title = fmt.Sprintf("Tweet by %s", author)
	}
	if title != "" {
		b.WriteString("Title: " + title + "\n")
	}
	if item.URL != "" {
		b.WriteString("URL: " + item.URL + "\n")
	}
	if item.PublishedAt != nil {
		b.WriteString("Published: " + item.PublishedAt.Format("2006-01-02") + "\n")
	}

	content := item.Content
	if len(content) > maxItemContentChars {
		content = content[:maxItemContentChars]
	}
	if content != "" {
		b.WriteString("\n" + content + "\n")
	}

	if metrics, ok := item.RawMetadata["public_metrics"].(map[string]interface{}); ok && len(metrics) > 0 {
		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, metrics[k]))
		}
		b.WriteString("\nEngagement: " + strings.Join(parts, ", ") + "\n")
	}
	return b.String()
}

func writeProfileLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(label + ": " + value + "\n")
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".\n"); i > 0 && i < 200 {
		return s[:i+1]
	}
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
