package gesture

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"wandcaster/motion"
)

// TemplateMatcherType tags JSON template documents.
const TemplateMatcherType = "template_matcher"

type templateDoc struct {
	Type      string                  `json:"type"`
	Templates map[string][][2]float64 `json:"templates"`
}

// LoadTemplates reads a .json or .npz template file.
func LoadTemplates(path string) ([]Template, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open templates: %w", err)
		}
		defer f.Close()
		return ReadJSON(f)
	case ".npz":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open templates: %w", err)
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat templates: %w", err)
		}
		return ReadNPZ(f, st.Size())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// SaveTemplates writes templates as .json or .npz depending on the extension.
func SaveTemplates(path string, templates []Template) error {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = WriteJSON(&buf, templates)
	case ".npz":
		err = WriteNPZ(&buf, templates)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteJSON encodes templates as a tagged template_matcher document. Source
// points are written, so reading them back prepares identical templates.
func WriteJSON(w io.Writer, templates []Template) error {
	doc := templateDoc{Type: TemplateMatcherType, Templates: make(map[string][][2]float64, len(templates))}
	for _, t := range templates {
		src := t.raw()
		pts := make([][2]float64, len(src))
		for i, p := range src {
			pts[i] = [2]float64{p.X, p.Y}
		}
		doc.Templates[t.Label] = pts
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	return nil
}

// ReadJSON decodes a template document. A bare label to points mapping is
// accepted as well.
func ReadJSON(r io.Reader) ([]Template, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var doc templateDoc
	if err := json.Unmarshal(raw, &doc); err == nil && doc.Templates != nil {
		if doc.Type != "" && doc.Type != TemplateMatcherType {
			return nil, fmt.Errorf("%w: type %q", ErrUnknownFormat, doc.Type)
		}
		return fromMap(doc.Templates)
	}

	var bare map[string][][2]float64
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return fromMap(bare)
}

func fromMap(m map[string][][2]float64) ([]Template, error) {
	if len(m) == 0 {
		return nil, ErrNoTemplates
	}
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := make([]Template, 0, len(m))
	for _, l := range labels {
		pts := m[l]
		if len(pts) < 2 {
			return nil, fmt.Errorf("template %q: need at least 2 points, got %d", l, len(pts))
		}
		path := make(motion.Path, len(pts))
		for i, p := range pts {
			path[i] = motion.Point{X: p[0], Y: p[1]}
		}
		out = append(out, NewTemplate(l, path))
	}
	return out, nil
}

// WriteNPZ stores each template as an N×2 float64 array named <label>.npy in
// a zip archive.
func WriteNPZ(w io.Writer, templates []Template) error {
	zw := zip.NewWriter(w)
	for _, t := range templates {
		src := t.raw()
		m := mat.NewDense(len(src), 2, nil)
		for i, p := range src {
			m.Set(i, 0, p.X)
			m.Set(i, 1, p.Y)
		}
		f, err := zw.Create(t.Label + ".npy")
		if err != nil {
			return fmt.Errorf("npz entry %q: %w", t.Label, err)
		}
		if err := npyio.Write(f, m); err != nil {
			return fmt.Errorf("npz write %q: %w", t.Label, err)
		}
	}
	return zw.Close()
}

// ReadNPZ loads templates from a zip of .npy arrays.
func ReadNPZ(r io.ReaderAt, size int64) ([]Template, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open npz: %w", err)
	}
	m := make(map[string][][2]float64, len(zr.File))
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".npy") {
			continue
		}
		label := strings.TrimSuffix(f.Name, ".npy")
		pts, err := readNPY(f)
		if err != nil {
			return nil, fmt.Errorf("npz entry %q: %w", label, err)
		}
		m[label] = pts
	}
	return fromMap(m)
}

func readNPY(f *zip.File) ([][2]float64, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m mat.Dense
	if err := npyio.Read(rc, &m); err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	if cols != 2 {
		return nil, fmt.Errorf("want N×2 array, got %d×%d", rows, cols)
	}
	pts := make([][2]float64, rows)
	for i := range pts {
		pts[i] = [2]float64{m.At(i, 0), m.At(i, 1)}
	}
	return pts, nil
}
