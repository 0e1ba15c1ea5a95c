package llm

import (
	"strings"

	"github.com/kopfenjager/Vision-crm-agent/constants"
)

// BuildPrompt embeds the ten record keys and the recognized text.
func BuildPrompt(rawText string) string {
	names := constants.AsStringSlice()

	var b strings.Builder
	b.WriteString("You extract data from the text of a scanned driver's license.\n")
	b.WriteString("Return ONLY a JSON object with exactly these keys and no others:\n")
	for _, n := range names {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteString("\n")
	}
	b.WriteString("Every value is a string copied from the text, or null when the value is absent or unreadable. ")
	b.WriteString("Do not guess. Do not add commentary, markdown or code fences.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(rawText)
	return b.String()
}
