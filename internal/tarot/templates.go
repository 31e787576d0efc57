package tarot

import (
	"fmt"
	"strings"

	"tarot-oracle/internal/models"
)

// DefaultTone is used when a spread request names no tone.
const DefaultTone = "warm"

// IntroPrompt builds the conversation that invites a visitor to a reading.
func IntroPrompt() []models.ChatMessage {
	return []models.ChatMessage{
		{
			Role:    "system",
			Content: "You are an esteemed, empathetic tarot psychic who speaks in short, vivid paragraphs. Avoid concrete predictions; focus on possibilities and reflection.",
		},
		{
			Role:    "user",
			Content: "Entice the requester to do a tarot reading in four sentences.",
		},
	}
}

// SpreadPrompt builds the three-card reading conversation for resolved cards.
func SpreadPrompt(cards []ResolvedCard, tone string) []models.ChatMessage {
	tone = strings.TrimSpace(tone)
	if tone == "" {
		tone = DefaultTone
	}

	parts := make([]string, 0, len(cards)+3)
	parts = append(parts, "Perform a three-card reading (Past, Present, Future) for this spread:")
	for _, c := range cards {
		orientation := "Upright"
		if c.Inverted {
			orientation = "Inverted"
		}
		parts = append(parts, fmt.Sprintf("%s: %q (%s).", c.Position, c.Name, orientation))
	}
	parts = append(parts,
		"The querent is seeking something; infer gently without inventing specifics.",
		"Offer a cohesive arc that connects the three positions.",
	)

	return []models.ChatMessage{
		{
			Role: "system",
			Content: fmt.Sprintf("You are an esteemed, empathetic tarot reader with a %s voice. "+
				"Avoid deterministic prophecy; emphasize reflection, agency, and possibilities. "+
				"Write vivid but concise paragraphs.", tone),
		},
		{
			Role:    "user",
			Content: strings.Join(parts, " "),
		},
	}
}
