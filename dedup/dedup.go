// Package dedup flags repeated news items inside a single collection run.
//
// Three signals are tracked: exact URLs, normalized titles, and content
// hashes. State is scoped to one run and cleared with Reset; concurrent
// ingestion runs over one Deduplicator need external coordination
// (single-writer assumption).
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"
)

// Deduplicator records what it has seen and answers duplicate checks.
type Deduplicator struct {
	mu         sync.Mutex
	seenURLs   map[string]struct{}
	seenTitles map[string]struct{}
	seenHashes map[string]struct{}
}

// New returns an empty Deduplicator.
func New() *Deduplicator {
	d := &Deduplicator{}
	d.reset()
	return d
}

// IsDuplicate reports whether the item repeats an earlier one and records it
// as seen when it does not. Check and insert happen under one lock, so a
// caller never observes a window where the same item could be admitted twice.
//
// Check order: URL (authoritative, short-circuits), normalized title, content
// hash. The content hash is inserted even when the item is then rejected by a
// later URL/title hit on another call — near-duplicate detection accumulates
// across every item whose content was examined. That asymmetry matches the
// collection behavior this pipeline was built against; do not "fix" it here.
func (d *Deduplicator) IsDuplicate(url, title, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if url != "" {
		if _, ok := d.seenURLs[url]; ok {
			return true
		}
	}

	normTitle := normalizeText(title)
	if normTitle != "" {
		if _, ok := d.seenTitles[normTitle]; ok {
			return true
		}
	}

	if content != "" {
		h := hashContent(content)
		if _, ok := d.seenHashes[h]; ok {
			d.seenHashes[h] = struct{}{}
			return true
		}
		d.seenHashes[h] = struct{}{}
	}

	if url != "" {
		d.seenURLs[url] = struct{}{}
	}
	if normTitle != "" {
		d.seenTitles[normTitle] = struct{}{}
	}
	return false
}

// Reset atomically clears all three seen sets, starting a fresh run scope.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// Size returns the current set sizes, mostly for run statistics.
func (d *Deduplicator) Size() (urls, titles, hashes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seenURLs), len(d.seenTitles), len(d.seenHashes)
}

func (d *Deduplicator) reset() {
	d.seenURLs = make(map[string]struct{})
	d.seenTitles = make(map[string]struct{})
	d.seenHashes = make(map[string]struct{})
}

// normalizeText lowercases and strips all whitespace so trivial reformatting
// does not defeat title comparison.
func normalizeText(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(normalizeText(content)))
	return hex.EncodeToString(sum[:])
}
