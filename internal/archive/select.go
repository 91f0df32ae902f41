package archive

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Member is a file found in an extracted archive
type Member struct {
	Path string // Absolute path inside the scratch directory
	Name string // Path relative to the archive root
	Size int64
	Head []byte // First bytes, used to spot metadata stubs
}

var stubMarkers = [][]byte{[]byte("Title:")}

func (m Member) ext() string {
	return strings.ToLower(filepath.Ext(m.Name))
}

func (m Member) isStub() bool {
	head := bytes.TrimPrefix(m.Head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	for _, marker := range stubMarkers {
		if bytes.HasPrefix(head, marker) {
			return true
		}
	}
	return false
}

// SelectContent picks the plain-text member most likely to hold the story itself.
// Short files and "Title:" attribution stubs only win when nothing else is there.
func SelectContent(members []Member, minBytes int64) (Member, bool) {
	var best, fallback Member
	foundBest, foundFallback := false, false

	for _, m := range members {
		if m.ext() != ".txt" {
			continue
		}
		if !foundFallback || m.Size > fallback.Size {
			fallback, foundFallback = m, true
		}
		if m.Size < minBytes || m.isStub() {
			continue
		}
		if !foundBest || m.Size > best.Size {
			best, foundBest = m, true
		}
	}

	if foundBest {
		return best, true
	}
	return fallback, foundFallback
}

// SelectAsset picks the largest document member
func SelectAsset(members []Member) (Member, bool) {
	var best Member
	found := false
	for _, m := range members {
		if m.ext() != ".pdf" {
			continue
		}
		if !found || m.Size > best.Size {
			best, found = m, true
		}
	}
	return best, found
}
