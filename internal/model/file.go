package model

import "strings"

// TierNone marks files that are included for every entitled user
// regardless of tier.
const TierNone = "None"

// FileDescriptor describes one downloadable file in the catalog.
// Descriptors are immutable once the catalog is loaded.
type FileDescriptor struct {
	Name      string `json:"name" yaml:"name"`
	SourceURL string `json:"source_url" yaml:"url"`
	Tier      string `json:"tier" yaml:"-"`
}

// IsGlobal reports whether the file is part of the always-included set.
func (f FileDescriptor) IsGlobal() bool {
	return f.Tier == TierNone
}

// Filename derives the attachment filename from the source URL.
func (f FileDescriptor) Filename() string {
	url := f.SourceURL
	if i := strings.LastIndexByte(url, '/'); i >= 0 && i < len(url)-1 {
		return url[i+1:]
	}
	return url
}
