package qcreport

import (
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/franz/neuroqc/internal/reconcile"
	"github.com/franz/neuroqc/internal/scanid"
	"github.com/rotisserie/eris"
)

// document is the data rendered into a subject report
type document struct {
	Subject      string
	Rows         []reconcile.Row
	TechNotes    *techNotes
	ConfigIssues []string
	Sections     []*section
}

// techNotes is nil for sites without technologist notes
type techNotes struct {
	Href string // relative to the report; empty when not found
}

// section holds everything shown under one scan heading. It collects the
// images and notes of a diagnostic routine.
type section struct {
	Bookmark    string
	File        string
	Stem        string
	HeaderDiffs []string
	BvecDiffs   []string
	Notes       []string
	Images      []string // relative to the report

	dir string
}

func newSection(reportDir, bookmark, file string) *section {
	return &section{Bookmark: bookmark, File: file, Stem: scanid.Stem(file), dir: reportDir}
}

// AddImage attaches an image by its path
func (s *section) AddImage(path string) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		rel = path
	}
	s.Images = append(s.Images, filepath.ToSlash(rel))
}

// AddNote attaches a line of text shown under the heading
func (s *section) AddNote(note string) {
	s.Notes = append(s.Notes, note)
}

var page = template.Must(template.New("report").Parse(`<HTML><TITLE>{{.Subject}} qc</TITLE>
<head>
<style>
body { font-family: futura,sans-serif;
        text-align: center;}
img {width:90%;
   display: block;
   margin-left: auto;
   margin-right: auto }
table { margin: 25px auto;
        border-collapse: collapse;
        text-align: left;
        width: 90%;
        border: 1px solid grey;
        border-bottom: 2px solid black;}
th {background: black;
    color: white;
    text-transform: uppercase;
    padding: 10px;}
td {border-top: thin solid;
    border-bottom: thin solid;
    padding: 10px;}
</style></head>
<h1> QC report for {{.Subject}} </h1>
<table><tr><th>Tag</th><th>File</th><th>Notes</th></tr>
{{- range .Rows}}
<tr><td>{{.Tag}}</td><td><a href="#{{.Bookmark}}">{{.File}}</a></td><td><font color="#FF0000">{{.Note}}</font></td></tr>
{{- end}}
</table>
{{with .TechNotes}}{{if .Href}}<a href="{{.Href}}" >Click Here to open Tech Notes</a><br>
{{else}}<p>Tech Notes not found</p>
{{end}}{{end -}}
{{range .ConfigIssues}}<p><font color="#FF0000">{{.}}</font></p>
{{end -}}
{{range .Sections}}<h2 id="{{.Bookmark}}">{{.File}}</h2>
{{- if .HeaderDiffs}}
<h3> {{.Stem}} header differences </h3>
<table>{{range .HeaderDiffs}}<tr><td>{{.}}</td></tr>{{end}}</table>
{{- end}}
{{- if .BvecDiffs}}
<h3> {{.Stem}} bvec/bval differences </h3>
<table>{{range .BvecDiffs}}<tr><td>{{.}}</td></tr>{{end}}</table>
{{- end}}
{{- range .Notes}}
<p>{{.}}</p>
{{- end}}
{{- range .Images}}
<a href="{{.}}" ><img src="{{.}}" > </a><br>
{{- end}}
<br>
{{end}}</HTML>
`))

func (d *document) render(w io.Writer) error {
	return page.Execute(w, d)
}

// write renders the document next to path and renames it into place, so a
// report only appears once it is complete.
func (d *document) write(path string) error {
	tmp := tempPath(path)
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "qcreport: create %s", tmp)
	}
	if err := d.render(f); err != nil {
		f.Close()
		return eris.Wrap(err, "qcreport: render")
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "qcreport: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "qcreport: rename %s", tmp)
	}
	return nil
}
