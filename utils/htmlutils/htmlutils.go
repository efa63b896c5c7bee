// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML.
package htmlutils

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

// PhotoPreview renders the balloon shown by KML viewers for a photo:
// its name followed by the image scaled to maxWidth pixels.
func PhotoPreview(name, src string, maxWidth int) (string, error) {
	p := element(atom.P)
	p.AppendChild(&html.Node{Type: html.TextNode, Data: name})

	img := element(atom.Img,
		html.Attribute{Key: "src", Val: src},
		html.Attribute{Key: "style", Val: fmt.Sprintf("max-width: %dpx;", maxWidth)},
	)

	var sb strings.Builder

	for _, n := range []*html.Node{p, img} {
		if err := html.Render(&sb, n); err != nil {
			return "", fmt.Errorf("rendering preview of %s: %w", name, err)
		}
	}

	return sb.String(), nil
}

// Node2string appends the trimmed text content of n to sb, separating
// fragments with a space.
func Node2string(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		if tmp := strings.TrimSpace(n.Data); len(tmp) > 0 {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(tmp)
		}

		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		Node2string(child, sb)
	}
}

// PlainText returns the text content of an HTML fragment.
func PlainText(fragment string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), element(atom.Div))
	if err != nil {
		return "", fmt.Errorf("parsing fragment: %w", err)
	}

	var sb strings.Builder
	for _, n := range nodes {
		Node2string(n, &sb)
	}

	return sb.String(), nil
}
