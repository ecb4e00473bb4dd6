package gen

import "fmt"

// DefaultPrompt is used when the user leaves the prompt empty.
const DefaultPrompt = "Create a picture of a nano banana dish in a fancy restaurant with a Gemini theme"

const imageOnlyPrefix = "Return only an image (PNG). Do not include any text in the response. "

// ExtendPrompt asks for a tile continuing the context tile across its east
// edge. Every direction uses this one template; orientation is handled by
// rotating the context.
func ExtendPrompt(base string, width, height int) string {
	if base == "" {
		base = DefaultPrompt
	}
	return fmt.Sprintf("%s. This is a hex tile. Generate a new hex tile that seamlessly extends this tile to the right, "+
		"matching the style, colors, and patterns perfectly at the left edge of the new tile. "+
		"The new tile should be the same size (%dx%d pixels) with transparent background. "+
		"Return only the new tile as a PNG image.", base, width, height)
}

// SeedPrompt returns the prompt for the first tile.
func SeedPrompt(base string) string {
	if base == "" {
		return DefaultPrompt
	}
	return base
}
