// Package uploader chunks enriched Markdown, embeds the chunks and upserts
// them into the active vector namespace.
package uploader

import "strings"

// separators is the fallback order for the recursive splitter: paragraph,
// line, table cell, sentence enders, word, character.
var separators = []string{"\n\n", "\n", "|", ".", "!", "?", " ", ""}

// Split cuts text into chunks of at most chunkSize bytes with roughly
// overlap bytes shared between neighbours. It recursively descends the
// separator list, keeping pieces as large as the budget allows.
func Split(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	chunks := split(text, chunkSize, overlap, separators)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func split(text string, chunkSize, overlap int, seps []string) []string {
	if len(text) <= chunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	sep := seps[len(seps)-1]
	var rest []string
	for i, s := range seps {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for i := 0; i < len(text); i += chunkSize {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			pieces = append(pieces, text[i:end])
		}
		return pieces
	}

	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if len(part) > chunkSize {
			pieces = append(pieces, split(part, chunkSize, overlap, rest)...)
		} else {
			pieces = append(pieces, part)
		}
	}
	return merge(pieces, chunkSize, overlap)
}

// merge greedily packs pieces into chunks up to chunkSize, carrying overlap
// bytes of the previous chunk into the next.
func merge(pieces []string, chunkSize, overlap int) []string {
	var chunks []string
	var cur strings.Builder
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > chunkSize {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if overlap > 0 && len(chunk) > overlap {
				cur.WriteString(chunk[len(chunk)-overlap:])
			}
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
