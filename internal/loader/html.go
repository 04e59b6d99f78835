package loader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"raglab/internal/domain"
)

// extractHTML reads a single HTML file or, for a directory such as a crawled
// documentation tree, every .html/.htm file below it.
func extractHTML(ctx context.Context, path string) ([]domain.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, readErr(path, err)
	}
	if !info.IsDir() {
		c, err := htmlFile(path)
		if err != nil {
			return nil, err
		}
		return []domain.Chunk{c}, nil
	}

	var docs []domain.Chunk
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(p))
		if d.IsDir() || (ext != ".html" && ext != ".htm") {
			return nil
		}
		c, err := htmlFile(p)
		if err != nil {
			return err
		}
		if c.Text != "" {
			docs = append(docs, c)
		}
		return nil
	})
	if err != nil {
		if domain.KindOf(err) != "" || ctx.Err() != nil {
			return nil, err
		}
		return nil, readErr(path, err)
	}
	return docs, nil
}

func htmlFile(path string) (domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Chunk{}, readErr(path, err)
	}
	defer f.Close()
	root, err := html.Parse(f)
	if err != nil {
		return domain.Chunk{}, readErr(path, err)
	}
	return document(path, mainText(root)), nil
}

// mainText returns the text of <article role="main">, else <main>, else <body>.
func mainText(root *html.Node) string {
	n := find(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Article && attr(n, "role") == "main"
	})
	if n == nil {
		n = find(root, func(n *html.Node) bool { return n.DataAtom == atom.Main })
	}
	if n == nil {
		n = find(root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	}
	if n == nil {
		return ""
	}

	var b strings.Builder
	collectText(n, &b)
	var lines []string
	for line := range strings.SplitSeq(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Section: true, atom.Article: true, atom.Dt: true, atom.Dd: true,
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		b.WriteByte('\n')
	}
}
