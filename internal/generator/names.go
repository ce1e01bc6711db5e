package generator

import (
	"fmt"
	"math/rand/v2"
	"regexp"
)

var adjectives = []string{
	"fluffy", "sparkly", "bouncy", "silly", "wobbly", "giggly", "squishy", "twinkly",
	"bubbly", "fuzzy", "wacky", "zippy", "snuggly", "dizzy", "jumpy", "wiggly",
}

var nouns = []string{
	"toaster", "penguin", "banana", "robot", "unicorn", "taco", "ninja", "dragon", "pizza", "wizard",
	"kitten", "rainbow", "spaghetti", "vampire", "turtle", "rocket", "butterfly", "sushi", "ghost", "mermaid",
}

const (
	lowerDigits  = "abcdefghijklmnopqrstuvwxyz0123456789"
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	textAlphabet = alphanumeric + " "

	// suffixLen random characters make collisions negligible within a batch
	suffixLen = 6
)

// NamePattern matches every name produced by the generator.
var NamePattern = regexp.MustCompile(`^[a-z]+-[a-z]+-([1-9][0-9]{0,2})-[a-z0-9]{6}\.json$`)

// randomName returns <adjective>-<noun>-<1..999>-<suffix>.json.
func randomName(rng *rand.Rand) string {
	return fmt.Sprintf("%s-%s-%d-%s.json",
		adjectives[rng.IntN(len(adjectives))],
		nouns[rng.IntN(len(nouns))],
		rng.IntN(999)+1,
		randomString(rng, lowerDigits, suffixLen))
}

func randomString(rng *rand.Rand, alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.IntN(len(alphabet))]
	}
	return string(b)
}
