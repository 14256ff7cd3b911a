// Package scanid parses the identifiers embedded in subject folder names and
// exported scan file names.
//
// Subject (timepoint) folders are named STUDY_SITE_SUBJECT_TIMEPOINT, and scan
// files STUDY_SITE_SUBJECT_TIMEPOINT_SESSION_TAG_SERIES_DESCRIPTION.nii.gz.
package scanid

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
)

var (
	subjectPattern = regexp.MustCompile(`^([^_]+)_([^_]+)_([^_]+)_([^_]+)(?:_([^_]+))?$`)
	scanPattern    = regexp.MustCompile(`^([^_]+_[^_]+_[^_]+_[^_]+)_([^_]+)_([^_]+)_([^_]+)_(.*)$`)
)

// Subject identifies one scanning timepoint of a participant
type Subject struct {
	ID          string // full identifier, e.g. SPN01_CMH_0001_01
	Study       string
	Site        string
	Participant string
	Timepoint   string
	Session     string // optional
}

// IsPhantom reports whether the identifier belongs to a phantom scan
func (s *Subject) IsPhantom() bool {
	return strings.Contains(s.Participant, "PHA") || strings.Contains(s.ID, "_PHA")
}

// TimepointID returns the STUDY_SITE_SUBJECT_TIMEPOINT prefix, which keys
// subject rows in the metrics store.
func (s *Subject) TimepointID() string {
	return strings.Join([]string{s.Study, s.Site, s.Participant, s.Timepoint}, "_")
}

// ParseSubject parses a subject folder name
func ParseSubject(id string) (*Subject, error) {
	m := subjectPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, eris.Wrapf(util.ErrUnsupported, "scanid: malformed subject id %q", id)
	}
	return &Subject{
		ID:          id,
		Study:       m[1],
		Site:        m[2],
		Participant: m[3],
		Timepoint:   m[4],
		Session:     m[5],
	}, nil
}

// SiteOf returns the site code of a subject id, or "" when it cannot be parsed
func SiteOf(id string) string {
	s, err := ParseSubject(id)
	if err != nil {
		return ""
	}
	return s.Site
}

// Scan holds the fields parsed from an exported scan file name
type Scan struct {
	Path        string
	Ident       *Subject
	Tag         string
	Series      string
	Description string
}

// Stem returns the file name without directory and NIfTI extension
func (s *Scan) Stem() string {
	return Stem(s.Path)
}

// ParseFilename parses an exported scan file name (with or without directory)
func ParseFilename(path string) (*Scan, error) {
	stem := Stem(path)
	m := scanPattern.FindStringSubmatch(stem)
	if m == nil {
		return nil, eris.Wrapf(util.ErrUnsupported, "scanid: malformed scan file name %q", filepath.Base(path))
	}

	ident, err := ParseSubject(m[1] + "_" + m[2])
	if err != nil {
		return nil, err
	}

	return &Scan{
		Path:        path,
		Ident:       ident,
		Tag:         m[3],
		Series:      m[4],
		Description: m[5],
	}, nil
}

// Extension returns the NIfTI extension of path (".nii.gz" or ".nii"), or
// the plain extension for anything else.
func Extension(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".nii.gz"):
		return ".nii.gz"
	case strings.HasSuffix(base, ".nii"):
		return ".nii"
	default:
		return filepath.Ext(base)
	}
}

// Stem returns the base name of path without its NIfTI extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, Extension(base))
}

// IsNifti reports whether the path has a NIfTI extension
func IsNifti(path string) bool {
	ext := Extension(path)
	return ext == ".nii.gz" || ext == ".nii"
}

// Companion returns path with its NIfTI extension replaced by ext
// (e.g. ".bvec" for the gradient table of a diffusion scan).
func Companion(path, ext string) string {
	return strings.TrimSuffix(path, Extension(path)) + ext
}

// TagToken wraps an acquisition tag in the delimiters used in file names
func TagToken(tag string) string {
	return "_" + tag + "_"
}

// ReplaceTag swaps the acquisition tag token in a file name
func ReplaceTag(name, from, to string) string {
	return strings.Replace(name, TagToken(from), TagToken(to), 1)
}

// DerivedTags maps a combined-contrast tag to the single-contrast tags its
// exports are split into. Derived names are synthesized by tag substitution.
var DerivedTags = map[string][]string{
	"PDT2": {"PD", "T2"},
}

// DerivedNames returns the single-contrast names synthesized from a
// combined-contrast file name or stem, or nil when name carries no
// combined tag.
func DerivedNames(name string) []string {
	var out []string
	for tag, children := range DerivedTags {
		if !strings.Contains(name, TagToken(tag)) {
			continue
		}
		for _, child := range children {
			out = append(out, ReplaceTag(name, tag, child))
		}
	}
	return out
}
