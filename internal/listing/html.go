package listing

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// nameColumn is the zero-based cell holding the file name link.
const nameColumn = 4

// ParseIndex extracts file names from a generated directory index page.
//
// The first table of the page is read row by row. The first row is the
// parent directory entry and is skipped. For every other row the name is the
// text at cell 5 -> first child -> first child, which matches the layout of
// the file server's index page (an <a>name</a> cell).
func ParseIndex(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing directory index: %w", err)
	}

	table := find(doc, atom.Table)
	if table == nil {
		return nil, fmt.Errorf("%w: no table", ErrMalformedListing)
	}

	var rows []*html.Node
	collect(table, atom.Tr, &rows)
	if len(rows) == 0 {
		return []string{}, nil
	}

	names := make([]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		name, err := rowName(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func rowName(row *html.Node) (string, error) {
	cells := children(row)
	if len(cells) <= nameColumn {
		return "", fmt.Errorf("%w: %d cells", ErrMalformedListing, len(cells))
	}

	n := cells[nameColumn]
	for depth := 0; depth < 2; depth++ {
		kids := children(n)
		if len(kids) == 0 {
			return "", fmt.Errorf("%w: name cell too shallow", ErrMalformedListing)
		}
		n = kids[0]
	}

	if n.Type != html.TextNode {
		return "", fmt.Errorf("%w: no name text", ErrMalformedListing)
	}
	return strings.TrimSpace(n.Data), nil
}

// children returns element and non-blank text children, ignoring comments and
// whitespace between tags.
func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			out = append(out, c)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

func collect(n *html.Node, a atom.Atom, out *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			*out = append(*out, c)
			continue
		}
		collect(c, a, out)
	}
}
