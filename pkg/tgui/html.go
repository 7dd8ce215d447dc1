// Package tgui builds Telegram HTML fragments: escaped text, a couple of
// tag wrappers and links, typed so raw and escaped strings do not mix.
package tgui

import (
	"html"
	"strings"
)

// H is a fragment that is safe to send with ParseMode="HTML": every value
// is either produced by an escaping constructor or explicitly marked Raw.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks s as already-safe markup. Callers own the escaping.
func Raw(s string) H { return H(s) }

// B wraps s in <b>, escaping it first.
func B(s string) H { return "<b>" + Esc(s) + "</b>" }

// Code wraps s in <code>, escaping it first.
func Code(s string) H { return "<code>" + Esc(s) + "</code>" }

// Link builds an <a> fragment. The href attribute and the visible text are
// both escaped.
func Link(text, url string) H {
	return H(`<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + `</a>`)
}

// JoinH joins fragments with sep, dropping blank ones.
func JoinH(sep string, parts ...H) H {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		kept = append(kept, string(p))
	}
	return H(strings.Join(kept, sep))
}
