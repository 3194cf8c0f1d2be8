package lookup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TargetCount                = 20
	DefaultDescriptionLanguage = "Vietnamese"
)

func buildSearchPrompt(industry, location string, excludeNames []string, descLanguage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: Perform a DEEP DATA MINING search for businesses in category %q located in %q.\n", industry, location)
	fmt.Fprintf(&b, "Goal: Extract exactly %d distinct businesses. Do not stop at 5 or 10.\n\n", TargetCount)

	b.WriteString("SEARCH STRATEGY (Must Follow):\n")
	fmt.Fprintf(&b, "1. Semantic Expansion: Do not just search for the exact keyword %q. Use synonyms and closely related categories (e.g., if \"Cafe\", also look for \"Coffee Shop\", \"Espresso Bar\", \"Bistro\", \"Tea House\"; if \"Bách hoá\", look for \"Supermarket\", \"Convenience Store\", \"Mini-mart\").\n", industry)
	fmt.Fprintf(&b, "2. Geographic Diversity: Do not just list the famous spots in the center. Look for businesses on different streets within %q.\n", location)
	b.WriteString("3. Quantity over Fame: We need volume. Include small businesses, new openings, and local favorites, not just the top-rated ones.\n\n")

	if len(excludeNames) > 0 {
		fmt.Fprintf(&b, "CRITICAL EXCLUSION LIST: You must NOT include these businesses (we already have them): %s. Find DIFFERENT businesses.\n\n", jsonList(excludeNames))
	}

	b.WriteString("REQUIRED DATA PER BUSINESS:\n")
	b.WriteString("- Name\n- Specific Address\n- Rating (number, e.g. 4.5)\n- Review Count (number)\n")
	b.WriteString("- Phone Number (Must try to find this)\n- Website (Official site or social page)\n")
	fmt.Fprintf(&b, "- A very short 1-sentence description in %s.\n\n", descLanguage)

	b.WriteString("STRICT OUTPUT FORMAT:\n")
	b.WriteString("1. Return ONLY a raw JSON array.\n")
	b.WriteString("2. No markdown, no code blocks, no intro/outro text.\n")
	b.WriteString("3. Keys: \"name\", \"address\", \"rating\", \"reviewCount\", \"website\", \"phone\", \"description\".\n")
	return b.String()
}

// jsonList encodes names without HTML escaping so they reach the model
// verbatim.
func jsonList(names []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(names)
	return strings.TrimSpace(buf.String())
}

func buildSubAreaPrompt(location string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I want to search for businesses in %q comprehensively.\n", location)
	fmt.Fprintf(&b, "List all official administrative subdivisions (like Wards/Phường, Communes/Xã) inside %q.\n\n", location)
	fmt.Fprintf(&b, "If %q is a small area or street, list major intersecting streets or nearby landmarks instead.\n\n", location)
	b.WriteString("Format: Return ONLY a raw list of names separated by newlines. Do not number them. Do not add explanations.\n")
	b.WriteString("Example Output:\nBen Nghe Ward\nBen Thanh Ward\nDa Kao Ward\n")
	return b.String()
}
