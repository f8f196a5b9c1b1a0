// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for extract-server: the
// converted Document, conversion status values, and configuration.
package types

import "time"

// ConversionStatus indicates the outcome of one conversion request.
type ConversionStatus string

const (
	ConversionDone     ConversionStatus = "converted"
	ConversionSkipped  ConversionStatus = "skipped"
	ConversionFailed   ConversionStatus = "failed"
	ConversionRejected ConversionStatus = "rejected"
)

// Document is the structured result of converting one file.
type Document struct {
	// Source is the base name of the converted file. For uploads this is the
	// staged name; the client filename is kept in ConversionRecord.Filename.
	Source string `json:"source" yaml:"source"`

	// Format is the lowercase file extension without the dot (e.g. "pdf").
	Format string `json:"format" yaml:"format"`

	// Title is the first heading of the document, or its base name.
	Title string `json:"title" yaml:"title"`

	// Backend names the converter that produced the Markdown.
	Backend string `json:"backend" yaml:"backend"`

	// Markdown is the extracted content.
	Markdown string `json:"markdown" yaml:"markdown"`
}

// ExportMarkdown returns the document content as Markdown text.
func (d *Document) ExportMarkdown() string {
	return d.Markdown
}

// ConversionRecord is one audit entry. It never carries file content.
type ConversionRecord struct {
	ID        string           `json:"id" yaml:"id"`
	Filename  string           `json:"filename" yaml:"filename"`
	SizeBytes int64            `json:"size_bytes" yaml:"size_bytes"`
	Backend   string           `json:"backend,omitempty" yaml:"backend,omitempty"`
	Status    ConversionStatus `json:"status" yaml:"status"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Title     string           `json:"title,omitempty" yaml:"title,omitempty"`
	Duration  time.Duration    `json:"duration" yaml:"duration"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
}
