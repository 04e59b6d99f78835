package loader

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"raglab/internal/domain"
)

func readErr(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewError(domain.KindInvalidArgument, path, "document does not exist", err)
	}
	return domain.NewError(domain.KindUnsupportedFormat, path, "cannot read document", err)
}

func extractText(_ context.Context, path string) ([]domain.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	return []domain.Chunk{document(path, string(data))}, nil
}

// extractPDF returns one unit per page with a 1-based "page" key.
func extractPDF(ctx context.Context, path string) ([]domain.Chunk, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	defer f.Close()

	var pages []domain.Chunk
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, readErr(path, fmt.Errorf("page %d: %w", i, err))
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		c := document(path, text)
		c.Metadata["page"] = i
		pages = append(pages, c)
	}
	return pages, nil
}

// extractDocx reads the paragraphs of word/document.xml.
func extractDocx(_ context.Context, path string) ([]domain.Chunk, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, readErr(path, err)
		}
		defer rc.Close()
		text, err := docxText(rc)
		if err != nil {
			return nil, readErr(path, err)
		}
		return []domain.Chunk{document(path, text)}, nil
	}
	return nil, domain.Errorf(domain.KindUnsupportedFormat, path, "missing word/document.xml")
}

func docxText(r io.Reader) (string, error) {
	var (
		b      strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// extractCSV returns one chunk per data row as "header: value" lines with a
// 0-based "row" key.
func extractCSV(ctx context.Context, path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, readErr(path, err)
	}

	var rows []domain.Chunk
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, readErr(path, err)
		}
		lines := make([]string, 0, len(header))
		for i, h := range header {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			lines = append(lines, strings.TrimSpace(h)+": "+strings.TrimSpace(v))
		}
		c := document(path, strings.Join(lines, "\n"))
		c.Metadata["row"] = n
		rows = append(rows, c)
	}
	return rows, nil
}
