package dispatch

import (
	"errors"
	"sort"

	"github.com/franz/neuroqc/internal/manifest"
	"github.com/franz/neuroqc/internal/scanid"
)

var (
	// ErrUnknownTag is returned for a tag without a routine
	ErrUnknownTag = errors.New("no diagnostic routine for tag")
	// ErrMissingCompanion is returned when a diffusion scan has no gradient table
	ErrMissingCompanion = errors.New("companion file missing")
	// ErrStore marks metric write failures, which abort the run
	ErrStore = errors.New("metrics store write failed")
)

// Kind is the diagnostic routine family of an acquisition tag
type Kind int

const (
	// Ignore produces no diagnostics (field maps)
	Ignore Kind = iota
	// Structural renders a slicer montage
	Structural
	// DualContrast renders the PD and T2 halves of a combined acquisition
	DualContrast
	// Functional runs motion, SNR, spike and correlation diagnostics
	Functional
	// Diffusion runs B0, direction and spike diagnostics
	Diffusion
)

func (k Kind) String() string {
	switch k {
	case Structural:
		return "structural"
	case DualContrast:
		return "dual-contrast"
	case Functional:
		return "functional"
	case Diffusion:
		return "diffusion"
	default:
		return "ignore"
	}
}

// Routine binds a tag to its kind and slicer parameters
type Routine struct {
	Kind     Kind
	SliceGap int // structural only
	Width    int // structural only
	Task     bool // functional only: task paradigm rather than rest
}

// Label names the routine in logs, events and run metrics. Functional
// routines are split into rest and task runs.
func (r Routine) Label() string {
	if r.Kind != Functional {
		return r.Kind.String()
	}
	if r.Task {
		return "functional-task"
	}
	return "functional-rest"
}

const slicerWidth = 1600

var routines = map[string]Routine{
	"T1":    {Kind: Structural, SliceGap: 5, Width: slicerWidth},
	"T2":    {Kind: Structural, SliceGap: 2, Width: slicerWidth},
	"PD":    {Kind: Structural, SliceGap: 2, Width: slicerWidth},
	"FLAIR": {Kind: Structural, SliceGap: 2, Width: slicerWidth},
	"PDT2":  {Kind: DualContrast},

	"FMAP":     {Kind: Ignore},
	"FMAP-6.5": {Kind: Ignore},
	"FMAP-8.5": {Kind: Ignore},

	"RST":     {Kind: Functional},
	"SPRL":    {Kind: Functional},
	"EPI":     {Kind: Functional, Task: true},
	"OBS":     {Kind: Functional, Task: true},
	"IMI":     {Kind: Functional, Task: true},
	"NBK":     {Kind: Functional, Task: true},
	"EMP":     {Kind: Functional, Task: true},
	"VN-SPRL": {Kind: Functional, Task: true},
	"SID":     {Kind: Functional, Task: true},
	"MID":     {Kind: Functional, Task: true},

	"DTI":           {Kind: Diffusion},
	"DTI21":         {Kind: Diffusion},
	"DTI22":         {Kind: Diffusion},
	"DTI23":         {Kind: Diffusion},
	"DTI60-29-1000": {Kind: Diffusion},
	"DTI60-20-1000": {Kind: Diffusion},
	"DTI60-1000":    {Kind: Diffusion},
	"DTI60-b1000":   {Kind: Diffusion},
	"DTI33-1000":    {Kind: Diffusion},
	"DTI33-b1000":   {Kind: Diffusion},
	"DTI33-3000":    {Kind: Diffusion},
	"DTI33-b3000":   {Kind: Diffusion},
	"DTI33-4500":    {Kind: Diffusion},
	"DTI33-b4500":   {Kind: Diffusion},
}

// Lookup returns the routine registered for tag
func Lookup(tag string) (Routine, bool) {
	r, ok := routines[tag]
	return r, ok
}

// Tags returns every tag with a routine, sorted
func Tags() []string {
	tags := make([]string, 0, len(routines))
	for tag := range routines {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Issue is a manifest tag no routine handles
type Issue struct {
	Site string
	Tag  string
}

// Validate returns every manifest tag absent from the routine table, in
// manifest order.
func Validate(m *manifest.Manifest) []Issue {
	var issues []Issue
	for _, code := range m.SiteCodes() {
		site, _ := m.Site(code)
		for _, acq := range site.Acquisitions {
			if _, ok := routines[acq.Tag]; !ok {
				issues = append(issues, Issue{Site: code, Tag: acq.Tag})
			}
		}
	}
	return issues
}

// Image suffixes written by each routine
var (
	functionalSuffixes = []string{"_BOLD", "_fmriplots", "_SNR", "_Spikes"}
	diffusionSuffixes  = []string{"_B0", "_dti4d", "_spikes"}
)

// Outputs lists the image file names a routine of kind writes for stem, in
// report order. Relinking attaches the ones that exist.
func Outputs(kind Kind, stem string) []string {
	switch kind {
	case Structural:
		return []string{stem + ".png"}
	case DualContrast:
		var out []string
		for _, derived := range scanid.DerivedNames(stem) {
			out = append(out, derived+".png")
		}
		return out
	case Functional:
		return withSuffixes(stem, functionalSuffixes)
	case Diffusion:
		return withSuffixes(stem, diffusionSuffixes)
	default:
		return nil
	}
}

func withSuffixes(stem string, suffixes []string) []string {
	out := make([]string, len(suffixes))
	for i, s := range suffixes {
		out[i] = stem + s + ".png"
	}
	return out
}
