package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrWordTooLong = errors.New("word exceeds chunk size")
	ErrEmptyText   = errors.New("no text to synthesize")
)

// SplitText packs the whitespace-separated words of text into chunks of
// at most limit runes, joined by single spaces. Words are never split; a
// word longer than limit is an error. Whitespace-only text yields no chunks.
func SplitText(text string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", limit)
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		if n > limit {
			return nil, fmt.Errorf("%w: %d runes, limit %d", ErrWordTooLong, n, limit)
		}
		if curLen > 0 && curLen+1+n > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks, nil
}

// Voice is a Polly voice and the language code it speaks.
type Voice struct {
	ID           string
	LanguageCode string
}

var (
	defaultVoice = Voice{ID: "Joanna", LanguageCode: "en-US"}
	voices       = map[string]Voice{
		"english": defaultVoice,
		"arabic":  {ID: "Zeina", LanguageCode: "arb"},
	}

	// knownVoices are the standard-engine voices a caller may pick.
	knownVoices = map[string]Voice{
		"Joanna":   defaultVoice,
		"Matthew":  {ID: "Matthew", LanguageCode: "en-US"},
		"Ivy":      {ID: "Ivy", LanguageCode: "en-US"},
		"Kendra":   {ID: "Kendra", LanguageCode: "en-US"},
		"Kimberly": {ID: "Kimberly", LanguageCode: "en-US"},
		"Salli":    {ID: "Salli", LanguageCode: "en-US"},
		"Joey":     {ID: "Joey", LanguageCode: "en-US"},
		"Justin":   {ID: "Justin", LanguageCode: "en-US"},
		"Amy":      {ID: "Amy", LanguageCode: "en-GB"},
		"Brian":    {ID: "Brian", LanguageCode: "en-GB"},
		"Emma":     {ID: "Emma", LanguageCode: "en-GB"},
		"Zeina":    {ID: "Zeina", LanguageCode: "arb"},
	}
)

// LookupVoice returns the known voice named id with its language code.
func LookupVoice(id string) (Voice, bool) {
	v, ok := knownVoices[id]
	return v, ok
}

// VoiceFor maps a job language to its voice. Unknown languages get the
// English voice.
func VoiceFor(language string) Voice {
	if v, ok := voices[strings.ToLower(strings.TrimSpace(language))]; ok {
		return v
	}
	return defaultVoice
}
