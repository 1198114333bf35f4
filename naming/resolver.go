// Package naming derives the project name and artifact filename of a meeting
// transcript from its subject and start time. Every function is pure.
package naming

import (
	"regexp"
	"strings"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
)

const (
	FallbackProject = "general"
	untitledSlug    = "untitled"
	undatedPrefix   = "undated"
)

var (
	bracketForm = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*(.*)$`)
	datePrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

var startLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Resolution is the canonical identity of one transcript artifact.
type Resolution struct {
	ProjectName string
	Filename    string
	StoragePath string
}

// Resolve returns the project name, filename and storage path together.
func Resolve(subject string, startDateTime string) Resolution {
	projectName := ResolveProjectName(subject)
	filename := ResolveFilename(subject, startDateTime)
	return Resolution{
		ProjectName: projectName,
		Filename:    filename,
		StoragePath: core.ArtifactPath(projectName, filename),
	}
}

// ResolveProjectName returns the slug of the subject's project token, or
// "general" when the subject carries no recognised prefix.
func ResolveProjectName(subject string) string {
	token, _, ok := splitSubject(subject)
	if !ok {
		return FallbackProject
	}
	if slug := Slugify(token); slug != "" {
		return slug
	}
	return FallbackProject
}

// ResolveFilename returns "{YYYY-MM-DD}-{slug}.vtt". The slug is taken from
// the title remainder after the project prefix, or from the whole subject
// when there is no prefix.
func ResolveFilename(subject string, startDateTime string) string {
	return datePart(startDateTime) + "-" + titleSlug(subject) + core.ArtifactExtension
}

// splitSubject applies bracket, dash and colon forms in that order.
func splitSubject(subject string) (string, string, bool) {
	if strings.TrimSpace(subject) == "" {
		return "", "", false
	}
	if match := bracketForm.FindStringSubmatch(subject); len(match) == 3 {
		return match[1], match[2], true
	}
	if idx := strings.Index(subject, " - "); idx > 0 {
		return subject[:idx], subject[idx+3:], true
	}
	if idx := strings.Index(subject, ":"); idx > 0 {
		return subject[:idx], subject[idx+1:], true
	}
	return "", "", false
}

func titleSlug(subject string) string {
	if _, remainder, ok := splitSubject(subject); ok {
		if slug := Slugify(remainder); slug != "" {
			return slug
		}
	}
	if slug := Slugify(subject); slug != "" {
		return slug
	}
	return untitledSlug
}

func datePart(startDateTime string) string {
	value := strings.TrimSpace(startDateTime)
	if value == "" {
		return undatedPrefix
	}
	for _, layout := range startLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC().Format("2006-01-02")
		}
	}
	if match := datePrefix.FindString(value); match != "" {
		return match
	}
	return undatedPrefix
}
