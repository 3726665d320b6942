// Package tgtext provides helpers for fitting text into Telegram message
// limits. Bot API limits for captions and entities are defined in UTF-16 code
// units, so plain len() or rune counts undercount emoji and other characters
// from the supplementary planes.
package tgtext

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf16"
)

const (
	// PhotoCaptionLimit is the Bot API limit for media captions.
	PhotoCaptionLimit = 1024
	// MessageTextLimit is the Bot API limit for plain message text.
	MessageTextLimit = 4096
)

const ellipsis = "…"

var (
	tagRe = regexp.MustCompile(`<[^>]*>`)
	wsRe  = regexp.MustCompile(`[ \t\f\v]+`)
)

// UTF16Len returns the length of text in UTF-16 code units.
func UTF16Len(text string) int {
	n := 0
	for _, r := range text {
		n += utf16.RuneLen(r)
	}
	return n
}

// Clip shortens text to at most limit UTF-16 code units, appending an
// ellipsis when truncation happens. Cuts are made on rune boundaries.
func Clip(text string, limit int) string {
	t := strings.TrimSpace(text)
	if limit <= 0 {
		return ""
	}
	if UTF16Len(t) <= limit {
		return t
	}

	target := limit - UTF16Len(ellipsis)
	if target <= 0 {
		return ellipsis
	}

	n := 0
	cut := 0
	for i, r := range t {
		n += utf16.RuneLen(r)
		if n > target {
			break
		}
		cut = i + len(string(r))
	}
	return strings.TrimRight(t[:cut], " \t\n") + ellipsis
}

// StripHTML removes tags and unescapes entities. It is intentionally a
// best-effort stripper for captions we generated ourselves, not a sanitizer.
func StripHTML(text string) string {
	t := strings.TrimSpace(text)
	t = tagRe.ReplaceAllString(t, "")
	t = html.UnescapeString(t)
	t = wsRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// PreparePhotoCaption fits captionHTML into the photo caption limit.
//
// If the caption fits, it is returned unchanged with parseMode "HTML" and an
// empty overflow. If it does not fit, HTML is stripped so clipping cannot
// break an open tag, the head is
// clipped to the limit and the full plain text is returned as overflow for the
// caller to send as a follow-up message; parseMode is empty in that case.
func PreparePhotoCaption(captionHTML string) (caption, overflow, parseMode string) {
	raw := strings.TrimSpace(captionHTML)
	if UTF16Len(raw) <= PhotoCaptionLimit {
		return raw, "", "HTML"
	}
	plain := StripHTML(raw)
	return Clip(plain, PhotoCaptionLimit), plain, ""
}

// ChunkText splits long text into message-sized chunks by UTF-16 length,
// preferring paragraph and line boundaries over hard cuts.
func ChunkText(text string, limit int) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}

	var chunks []string
	for t != "" {
		if UTF16Len(t) <= limit {
			chunks = append(chunks, t)
			break
		}

		// Largest rune prefix within the limit.
		n := 0
		cut := 0
		for i, r := range t {
			n += utf16.RuneLen(r)
			if n > limit {
				break
			}
			cut = i + len(string(r))
		}
		prefix := t[:cut]

		if at := strings.LastIndex(prefix, "\n\n"); at > 0 {
			cut = at + 2
		} else if at := strings.LastIndex(prefix, "\n"); at > 0 {
			cut = at + 1
		}

		part := strings.TrimSpace(t[:cut])
		if part != "" {
			chunks = append(chunks, part)
		}
		t = strings.TrimSpace(t[cut:])
	}
	return chunks
}
