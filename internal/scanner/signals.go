package scanner

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Link is an anchor with an href.
type Link struct {
	Href string
	Text string
}

// Signals is everything the predicates look at, extracted once per page.
type Signals struct {
	FinalURL      *url.URL
	Links         []Link
	Forms         int
	Images        int
	ImagesWithAlt int
	Scripts       []string
	HTML          string // lower-cased markup
	Text          string // lower-cased visible text
}

// Extract parses body and collects signals. finalURL is where the fetch ended up.
func Extract(finalURL *url.URL, body []byte) (Signals, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Signals{}, fmt.Errorf("parse html: %w", err)
	}

	s := Signals{
		FinalURL: finalURL,
		HTML:     strings.ToLower(string(body)),
	}
	var text strings.Builder
	walk(root, &s, &text)
	s.Text = strings.ToLower(strings.Join(strings.Fields(text.String()), " "))
	return s, nil
}

func walk(n *html.Node, s *Signals, text *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		text.WriteString(n.Data)
		text.WriteByte(' ')
	case html.ElementNode:
		switch n.DataAtom {
		case atom.A:
			if href, ok := attr(n, "href"); ok {
				s.Links = append(s.Links, Link{Href: href, Text: nodeText(n)})
			}
		case atom.Form:
			s.Forms++
		case atom.Img:
			s.Images++
			if alt, _ := attr(n, "alt"); strings.TrimSpace(alt) != "" {
				s.ImagesWithAlt++
			}
		case atom.Script:
			src, _ := attr(n, "src")
			s.Scripts = append(s.Scripts, src+" "+nodeText(n))
			return
		case atom.Style, atom.Noscript, atom.Template:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, s, text)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
