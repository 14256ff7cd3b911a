package qcreport

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
)

// Check log prefixes written by the header and gradient table checkers
const (
	headerLogPrefix = "dm-check-headers-"
	bvecLogPrefix   = "dm-check-bvecs-"
)

var headerLead = regexp.MustCompile(`^.*?: *`)

// checkLogs holds the lines of a subject's check logs
type checkLogs struct {
	headers []string
	bvecs   []string
}

// loadCheckLogs reads <qcdir>/logs/dm-check-{headers,bvecs}-<subject>*
func loadCheckLogs(qcdir, subject string) (*checkLogs, error) {
	dir := filepath.Join(qcdir, "logs")
	headers, err := readMatching(dir, headerLogPrefix+subject+"*")
	if err != nil {
		return nil, err
	}
	bvecs, err := readMatching(dir, bvecLogPrefix+subject+"*")
	if err != nil {
		return nil, err
	}
	return &checkLogs{headers: headers, bvecs: bvecs}, nil
}

// headerDiffs returns the header check lines naming stem, without the
// leading "<file>: " part.
func (c *checkLogs) headerDiffs(stem string) []string {
	var out []string
	for _, line := range c.headers {
		if strings.Contains(line, stem) {
			out = append(out, headerLead.ReplaceAllString(line, ""))
		}
	}
	return out
}

// bvecDiffs returns the gradient check lines naming stem, with everything up
// to the stem removed.
func (c *checkLogs) bvecDiffs(stem string) []string {
	lead := regexp.MustCompile(`^.*` + regexp.QuoteMeta(stem))
	var out []string
	for _, line := range c.bvecs {
		if strings.Contains(line, stem) {
			out = append(out, lead.ReplaceAllString(line, ""))
		}
	}
	return out
}

// glob matches pattern inside dir. A missing dir matches nothing.
func glob(dir, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "qcreport: glob %s in %s", pattern, dir)
	}
	sort.Strings(matches)
	for i, m := range matches {
		matches[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return matches, nil
}

func readMatching(dir, pattern string) ([]string, error) {
	paths, err := glob(dir, pattern)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, path := range paths {
		l, err := readLines(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l...)
	}
	return lines, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "qcreport: open %s", path)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "qcreport: read %s", path)
	}
	return lines, nil
}

// findTechNotes returns the first PDF under
// <datadir>/RESOURCES/<subject>*/*/*/, or "" when there is none.
func findTechNotes(datadir, subject string) (string, error) {
	matches, err := glob(filepath.Join(datadir, "RESOURCES"), subject+"*/*/*/*.pdf")
	if err != nil || len(matches) == 0 {
		return "", err
	}
	return matches[0], nil
}
