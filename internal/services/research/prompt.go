package research

import (
	"fmt"
	"strings"

	"postforge/internal/brand"
)

const researchPrompt = `You are a brand researcher. Using live web data, describe the business at the given URL: what it sells, who it serves, its visual identity, brand voice, social presence, and anything distinctive about its positioning. Report only what you can actually find. If the site is unreachable or empty, say so explicitly.`

const extractionPrompt = `You are a brand analyst. From the research findings (or your direct knowledge of the URL), produce a JSON object with exactly these fields:
{
  "name": string,
  "industry": string,
  "essence": string (one sentence capturing what the brand is about),
  "strategy": string (how it positions itself),
  "vibe": string (tone and visual mood),
  "colors": [string] (hex codes, primary first),
  "services": [string],
  "handles": [string] (social handles, e.g. "@acme"),
  "logo_url": string ("" if unknown),
  "confidence": integer 0-100 (how much REAL data backed these answers)
}
Respond with JSON only. Set confidence honestly: 0 means pure guesswork, 100 means every field came from verified findings.`

const seedingPrompt = `You are a social media content strategist. Generate post candidates for the brand described below. Respond with JSON only:
{"ideas": [{"platform": one of "instagram"|"tiktok"|"linkedin"|"x"|"facebook", "caption": string, "hashtags": [string], "visual_prompt": string (a concrete description of the image to create, in the brand's visual style)}]}
Vary platforms and angles. Captions must be ready to publish. Visual prompts must be self-contained.`

func seedingInput(profile brand.Profile, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d post ideas.\n\n", count)
	fmt.Fprintf(&b, "Brand: %s\n", profile.Name)
	if profile.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", profile.Industry)
	}
	if profile.Essence != "" {
		fmt.Fprintf(&b, "Essence: %s\n", profile.Essence)
	}
	if profile.Strategy != "" {
		fmt.Fprintf(&b, "Strategy: %s\n", profile.Strategy)
	}
	if profile.Vibe != "" {
		fmt.Fprintf(&b, "Vibe: %s\n", profile.Vibe)
	}
	if len(profile.Colors) > 0 {
		fmt.Fprintf(&b, "Brand colors: %s\n", strings.Join(profile.Colors, ", "))
	}
	if len(profile.Services) > 0 {
		fmt.Fprintf(&b, "Services: %s\n", strings.Join(profile.Services, ", "))
	}
	return b.String()
}
