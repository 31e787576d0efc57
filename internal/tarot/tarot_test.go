package tarot

import (
	"strings"
	"testing"
)

func TestDefaultDeck(t *testing.T) {
	deck := DefaultDeck()
	if got := len(deck.Cards()); got != 22 {
		t.Fatalf("expected 22 major arcana, got %d", got)
	}
	card, ok := deck.Lookup(16)
	if !ok || card.Name != "The Tower" {
		t.Fatalf("expected The Tower, got %#v", card)
	}
	if _, ok := deck.Lookup(2.5); ok {
		t.Fatalf("non-integral numbers must not match")
	}
}

func TestLoadDeckRejectsDuplicates(t *testing.T) {
	_, err := LoadDeck([]byte("- {number: 1, name: A}\n- {number: 1, name: B}\n"))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	resolved := DefaultDeck().Resolve([]SpreadCard{
		{Number: 0},
		{Number: 99, Inverted: true},
		{Number: 19},
		{Number: 1},
	})
	if len(resolved) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(resolved))
	}
	if resolved[0].Position != "The Past" || resolved[0].Name != "The Fool" {
		t.Fatalf("unexpected first card %#v", resolved[0])
	}
	if resolved[1].Name != "Card 99" || !resolved[1].Inverted {
		t.Fatalf("unexpected unknown card %#v", resolved[1])
	}
	if resolved[2].Position != "The Future" || resolved[2].Name != "The Sun" {
		t.Fatalf("unexpected third card %#v", resolved[2])
	}
}

func TestSpreadPrompt(t *testing.T) {
	cards := DefaultDeck().Resolve([]SpreadCard{{Number: 17}, {Number: 13, Inverted: true}})
	messages := SpreadPrompt(cards, "")
	if len(messages) != 2 || messages[0].Role != "system" || messages[1].Role != "user" {
		t.Fatalf("unexpected messages %#v", messages)
	}
	if !strings.Contains(messages[0].Content, "warm voice") {
		t.Fatalf("expected default tone in system prompt, got %q", messages[0].Content)
	}
	user := messages[1].Content
	for _, want := range []string{`The Past: "The Star" (Upright).`, `The Present: "Death" (Inverted).`} {
		if !strings.Contains(user, want) {
			t.Fatalf("expected %q in %q", want, user)
		}
	}
}

func TestIntroPrompt(t *testing.T) {
	messages := IntroPrompt()
	if len(messages) != 2 || !strings.Contains(messages[1].Content, "four sentences") {
		t.Fatalf("unexpected intro prompt %#v", messages)
	}
}

func TestResolveSpreadUsesEmbeddedDeck(t *testing.T) {
	resolved := ResolveSpread([]SpreadCard{{Number: 21}})
	if len(resolved) != 1 || resolved[0].Name != "The World" || resolved[0].Position != "The Past" {
		t.Fatalf("unexpected resolution %#v", resolved)
	}
	if _, ok := Lookup(22); ok {
		t.Fatalf("expected 22 to be outside the major arcana")
	}
}

func TestPositionNameBeyondThree(t *testing.T) {
	if got := positionName(3); got != "Pos4" {
		t.Fatalf("expected Pos4, got %q", got)
	}
}
