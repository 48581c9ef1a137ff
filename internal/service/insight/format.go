package insight

import (
	"fmt"
	"strings"
)

const insightIntro = "Based on my analysis of your website, here's what I think would work for your first campaign:"

// Format renders a payload into the multi-section insight message. Sections
// always appear in the same order, even when a list is empty.
func Format(p Payload) string {
	var b strings.Builder

	b.WriteString(insightIntro)
	b.WriteString("\n\n**Your Business**: ")
	b.WriteString(p.Description)

	b.WriteString("\n\n**Your Products/Services**:")
	for _, product := range p.Products {
		b.WriteString("\n• ")
		b.WriteString(product)
	}

	b.WriteString("\n\n**Campaign Objectives**: ")
	b.WriteString(strings.Join(p.Objectives, ", "))

	b.WriteString("\n\n**Target Audiences**:")
	writeNumbered(&b, p.Audiences)

	b.WriteString("\n\n**Recommended Channel Strategy** (in order of priority):")
	writeNumbered(&b, p.ChannelPriority)

	return b.String()
}

func writeNumbered(b *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(b, "\n%d. %s", i+1, item)
	}
}
