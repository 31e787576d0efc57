// Package tarot holds the card metadata store and the prompt templates built
// from it.
package tarot

import (
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed deck.yaml
var deckYAML []byte

// Card describes one card of the deck.
type Card struct {
	Number   int      `yaml:"number" json:"number"`
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Deck is an immutable card store indexed by card number.
type Deck struct {
	cards    []Card
	byNumber map[int]Card
}

// LoadDeck parses a YAML card list.
func LoadDeck(data []byte) (*Deck, error) {
	var cards []Card
	if err := yaml.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("parse deck: %w", err)
	}

	byNumber := make(map[int]Card, len(cards))
	for _, card := range cards {
		if card.Name == "" {
			return nil, fmt.Errorf("card %d: name must not be empty", card.Number)
		}
		if _, exists := byNumber[card.Number]; exists {
			return nil, fmt.Errorf("card %d: duplicate number", card.Number)
		}
		byNumber[card.Number] = card
	}
	return &Deck{cards: cards, byNumber: byNumber}, nil
}

// DefaultDeck returns the embedded Major Arcana.
var DefaultDeck = sync.OnceValue(func() *Deck {
	deck, err := LoadDeck(deckYAML)
	if err != nil {
		panic(err)
	}
	return deck
})

// Lookup finds a card of the embedded deck.
func Lookup(number float64) (Card, bool) {
	return DefaultDeck().Lookup(number)
}

// ResolveSpread resolves cards against the embedded deck.
func ResolveSpread(cards []SpreadCard) []ResolvedCard {
	return DefaultDeck().Resolve(cards)
}

// Cards returns a copy of every card in deck order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Lookup finds a card by number. Non-integral numbers never match.
func (d *Deck) Lookup(number float64) (Card, bool) {
	if number != math.Trunc(number) || math.IsInf(number, 0) {
		return Card{}, false
	}
	card, ok := d.byNumber[int(number)]
	return card, ok
}

// SpreadCard is a validated card selection from the client.
type SpreadCard struct {
	Number   float64 `json:"number"`
	Inverted bool    `json:"inverted"`
}

// ResolvedCard is a spread card placed in its position and named.
type ResolvedCard struct {
	Position string
	Name     string
	Inverted bool
	Keywords []string
}

// MaxSpreadCards is the number of positions in a reading.
const MaxSpreadCards = 3

var positions = [MaxSpreadCards]string{"The Past", "The Present", "The Future"}

// Resolve places at most MaxSpreadCards cards into their positions.
func (d *Deck) Resolve(cards []SpreadCard) []ResolvedCard {
	if len(cards) > MaxSpreadCards {
		cards = cards[:MaxSpreadCards]
	}

	out := make([]ResolvedCard, 0, len(cards))
	for idx, c := range cards {
		resolved := ResolvedCard{
			Position: positionName(idx),
			Name:     "Card " + strconv.FormatFloat(c.Number, 'f', -1, 64),
			Inverted: c.Inverted,
		}
		if meta, ok := d.Lookup(c.Number); ok {
			resolved.Name = meta.Name
			resolved.Keywords = meta.Keywords
		}
		out = append(out, resolved)
	}
	return out
}

func positionName(idx int) string {
	if idx < len(positions) {
		return positions[idx]
	}
	return fmt.Sprintf("Pos%d", idx+1)
}
