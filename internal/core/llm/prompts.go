package llm

import (
	"strconv"
	"strings"
)

// NoUpdatesMarker is the literal the extraction prompt asks the model to
// return when a chunk contains nothing newsworthy.
const NoUpdatesMarker = "NO_UPDATES"

const (
	promptPartPlaceholder   = "{{PART}}"
	promptTotalPlaceholder  = "{{TOTAL}}"
	promptMarkerPlaceholder = "{{MARKER}}"
)

const chunkExtractionPrompt = `You are a Principal AI Engineer reviewing part {{PART}} of {{TOTAL}} of a technology newsletter.

Extract only the newsworthy items from this part: model and product launches, benchmark results, funding and partnership announcements, and links worth citing.
Ignore sponsor blocks, advertisements, event reminders, subscription prompts, and commentary about the newsletter itself.

For each item write one short paragraph stating what happened, who is behind it, and why it matters. Keep the relevant links next to each item.
If this part contains nothing newsworthy, respond with exactly {{MARKER}} and nothing else.`

// DigestSystemPrompt instructs the model to emit the full digest document.
// The response format schema enforces the structure; the prompt carries the
// field semantics.
const DigestSystemPrompt = `You are a Principal AI Engineer. Extract the most high-signal updates from this newsletter content.

Return a single JSON object:
- source: {name, url} — the newsletter or publication this content came from (url may be an empty string).
- insights: array of news items, each with:
  - headline: a punchy, technical headline.
  - summary: 2-3 bullet points of technical substance.
  - relevance_score: integer 1-10, how critical this is for a senior ML engineer.
  - category: e.g. "Model Release", "Open Source", "Hardware", "Funding".
  - links: URLs cited for this item.
  - tags: short lowercase topic tags.
  - companies_mentioned: companies and labs central to the item.
  - key_people: people central to the item.

Only include genuinely newsworthy items. Skip sponsor content, self-promotion, and event boilerplate. When nothing qualifies, return {"source": {"name": "", "url": ""}, "insights": []}.`

// BuildChunkPrompt renders the extraction system prompt for one chunk,
// framing it as part index+1 of total.
func BuildChunkPrompt(index, total int) string {
	prompt := strings.ReplaceAll(chunkExtractionPrompt, promptPartPlaceholder, strconv.Itoa(index+1))
	prompt = strings.ReplaceAll(prompt, promptTotalPlaceholder, strconv.Itoa(total))

	return strings.ReplaceAll(prompt, promptMarkerPlaceholder, NoUpdatesMarker)
}
