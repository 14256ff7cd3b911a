// Package manifest loads the per-site expected-acquisition manifest from a
// project settings file.
//
// The relevant part of the settings file looks like:
//
//	Sites:
//	  - CMH:
//	      ExportInfo:
//	        - T1:   {Count: 1}
//	        - RST:  {Count: 1}
//	        - DTI60-1000: {Count: 1}
//
// Acquisition order within a site is preserved; it defines the order of the
// reconciliation table.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Acquisition is one expected acquisition category of a site
type Acquisition struct {
	Tag   string
	Count int
}

// Site lists the acquisitions expected for subjects of one site
type Site struct {
	Code         string
	Acquisitions []Acquisition
}

// Manifest holds every site of a project
type Manifest struct {
	Sites []Site
	index map[string]int
}

type settingsFile struct {
	Sites []map[string]siteBlock `yaml:"Sites"`
}

type siteBlock struct {
	ExportInfo []map[string]acquisitionBlock `yaml:"ExportInfo"`
}

type acquisitionBlock struct {
	Count *int `yaml:"Count"`
}

// Load reads and validates a project settings file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: %s", path)
	}
	return m, nil
}

// Parse decodes and validates project settings YAML
func Parse(data []byte) (*Manifest, error) {
	var raw settingsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(util.ErrInvalidConfig, "malformed yaml: %v", err)
	}
	if len(raw.Sites) == 0 {
		return nil, eris.Wrap(util.ErrInvalidConfig, "no Sites defined")
	}

	m := &Manifest{index: make(map[string]int)}
	for i, entry := range raw.Sites {
		if len(entry) != 1 {
			return nil, eris.Wrapf(util.ErrInvalidConfig, "Sites[%d]: expected exactly one site code, got %d", i, len(entry))
		}
		for code, block := range entry {
			site, err := buildSite(code, block)
			if err != nil {
				return nil, err
			}
			if _, dup := m.index[code]; dup {
				return nil, eris.Wrapf(util.ErrInvalidConfig, "site %s defined twice", code)
			}
			m.index[code] = len(m.Sites)
			m.Sites = append(m.Sites, site)
		}
	}
	return m, nil
}

func buildSite(code string, block siteBlock) (Site, error) {
	site := Site{Code: code}
	seen := make(map[string]bool)

	for i, row := range block.ExportInfo {
		if len(row) != 1 {
			return site, eris.Wrapf(util.ErrInvalidConfig, "site %s ExportInfo[%d]: expected exactly one tag", code, i)
		}
		for tag, acq := range row {
			if seen[tag] {
				return site, eris.Wrapf(util.ErrInvalidConfig, "site %s: tag %s listed twice", code, tag)
			}
			seen[tag] = true

			if acq.Count == nil {
				return site, eris.Wrapf(util.ErrInvalidConfig, "site %s tag %s: missing Count", code, tag)
			}
			if *acq.Count < 0 {
				return site, eris.Wrapf(util.ErrInvalidConfig, "site %s tag %s: negative Count %d", code, tag, *acq.Count)
			}
			site.Acquisitions = append(site.Acquisitions, Acquisition{Tag: tag, Count: *acq.Count})
		}
	}
	return site, nil
}

// Site returns the site with the given code
func (m *Manifest) Site(code string) (*Site, bool) {
	i, ok := m.index[code]
	if !ok {
		return nil, false
	}
	return &m.Sites[i], true
}

// SiteCodes returns every site code in file order
func (m *Manifest) SiteCodes() []string {
	codes := make([]string, len(m.Sites))
	for i, s := range m.Sites {
		codes[i] = s.Code
	}
	return codes
}

// Tags returns the union of tags over all sites, sorted
func (m *Manifest) Tags() []string {
	set := make(map[string]struct{})
	for _, s := range m.Sites {
		for _, a := range s.Acquisitions {
			set[a.Tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// String returns a one-line description
func (s Site) String() string {
	return fmt.Sprintf("%s (%d acquisitions)", s.Code, len(s.Acquisitions))
}
