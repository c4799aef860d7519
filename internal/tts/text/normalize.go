// Package text normalizes input text before it reaches a speech model.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNumberForWords is the largest integer spelled out; larger numbers are kept as digits.
const MaxNumberForWords = 999999

// Normalizer rewrites text into a form speech models read aloud naturally.
type Normalizer struct {
	numberPattern     *regexp.Regexp
	whitespacePattern *regexp.Regexp
	referencePattern  *regexp.Regexp
	abbreviations     *strings.Replacer
	punctuation       *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		numberPattern:     regexp.MustCompile(`\d+`),
		whitespacePattern: regexp.MustCompile(`\s+`),
		referencePattern:  regexp.MustCompile(`\[\d+\]`),
		abbreviations: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Co.", "Company",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
		),
		punctuation: strings.NewReplacer(
			"—", " - ",
			"–", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize expands abbreviations and numbers, strips reference markers,
// collapses whitespace and terminates the last sentence.
func (n *Normalizer) Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	output := n.abbreviations.Replace(input)
	output = n.referencePattern.ReplaceAllString(output, "")
	output = n.punctuation.Replace(output)
	output = n.numberPattern.ReplaceAllStringFunc(output, func(digits string) string {
		number, err := strconv.Atoi(digits)
		if err != nil {
			return digits
		}

		return IntegerToWords(number)
	})
	output = n.whitespacePattern.ReplaceAllString(output, " ")

	return terminateSentence(strings.TrimSpace(output))
}

func terminateSentence(text string) string {
	if text == "" {
		return text
	}

	last, _ := utf8.DecodeLastRuneInString(text)

	switch last {
	case '.', '!', '?':
		return text
	}

	if unicode.IsPunct(last) {
		return strings.TrimRightFunc(text, unicode.IsPunct) + "."
	}

	return text + "."
}

var (
	ones = []string{ //nolint:gochecknoglobals
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens = []string{ //nolint:gochecknoglobals
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

// IntegerToWords spells out 0..MaxNumberForWords in English.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return ones[0]
	}

	var parts []string

	if thousands := number / 1000; thousands > 0 {
		parts = append(parts, underThousand(thousands), "thousand")
	}

	if rest := number % 1000; rest > 0 {
		parts = append(parts, underThousand(rest))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	var parts []string

	if hundreds := number / 100; hundreds > 0 {
		parts = append(parts, ones[hundreds], "hundred")
	}

	rest := number % 100

	switch {
	case rest == 0:
	case rest < 20:
		parts = append(parts, ones[rest])
	case rest%10 == 0:
		parts = append(parts, tens[rest/10])
	default:
		parts = append(parts, tens[rest/10]+"-"+ones[rest%10])
	}

	return strings.Join(parts, " ")
}
