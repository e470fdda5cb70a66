package midifile

import (
	"bytes"
	"path/filepath"
	"slices"
	"strings"
)

// Content is the result of Sniff.
type Content string

const (
	ContentSMF          Content = "smf"
	ContentMacBinarySMF Content = "smf+macbinary"
	ContentUnknown      Content = "unknown"
)

// Extensions lists the file name extensions used for MIDI files.
var Extensions = []string{".mid", ".midi", ".kar", ".rmi", ".rtx", ".smf"}

// HasMIDIExtension reports whether filename has one of Extensions.
func HasMIDIExtension(filename string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(filename)))
}

// Sniff detects a Standard MIDI File from its first bytes, with or without
// a MacBinary prefix.
func Sniff(data []byte) Content {
	tag := []byte(headerTag)
	switch {
	case bytes.HasPrefix(data, tag):
		return ContentSMF
	case len(data) >= macBinaryPrefix+len(tag) && bytes.HasPrefix(data[macBinaryPrefix:], tag):
		return ContentMacBinarySMF
	}
	return ContentUnknown
}
