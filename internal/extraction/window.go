package extraction

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

const truncatedMarker = "\n…(truncated)"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

func tokenEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		// BPE ranks ship embedded in the loader, so no download at first use
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("extract.tiktoken.unavailable", "error", err, "fallback", "word estimate")
			return
		}
		encoder = enc
	})
	return encoder
}

// CountTokens counts cl100k_base tokens, falling back to a word-based estimate.
func CountTokens(text string) int {
	if enc := tokenEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return int(float64(len(strings.Fields(text))) * 1.33)
}

// Window bounds the text sent to an extractor by characters and by tokens.
type Window struct {
	MaxChars  int
	MaxTokens int
}

// Apply returns the bounded text, whether anything was cut, and its token count.
func (w Window) Apply(text string) (string, bool, int) {
	text = strings.TrimSpace(text)
	truncated := false

	if w.MaxChars > 0 && utf8.RuneCountInString(text) > w.MaxChars {
		text = string([]rune(text)[:w.MaxChars])
		truncated = true
	}

	if w.MaxTokens > 0 {
		if enc := tokenEncoder(); enc != nil {
			toks := enc.Encode(text, nil, nil)
			if len(toks) > w.MaxTokens {
				text = enc.Decode(toks[:w.MaxTokens])
				truncated = true
			}
		} else if words := strings.Fields(text); float64(len(words))*1.33 > float64(w.MaxTokens) {
			keep := int(float64(w.MaxTokens) / 1.33)
			text = strings.Join(words[:keep], " ")
			truncated = true
		}
	}

	if truncated {
		text = strings.TrimRightFunc(text, func(r rune) bool { return r == utf8.RuneError }) + truncatedMarker
	}
	return text, truncated, CountTokens(text)
}
