// Package linkcheck verifies that internal links in the rendered site resolve
// to files in the output tree. Broken links are reported, not fatal.
package linkcheck

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Broken describes one unresolvable internal reference.
type Broken struct {
	SourceFile string // site-relative path of the referencing page
	Target     string // the href/src as written
	Tag        string // a, img, iframe, script, link
}

func (b Broken) String() string {
	return fmt.Sprintf("%s: <%s> -> %s", b.SourceFile, b.Tag, b.Target)
}

// linkAttrs maps tags to the attribute that carries their reference.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"iframe": "src",
	"script": "src",
}

// CheckSite walks siteDir, extracts references from every .html file, and
// returns the internal ones that do not resolve to an existing file.
// External links (with a scheme or host) are ignored.
func CheckSite(siteDir string) ([]Broken, error) {
	var broken []Broken

	err := filepath.WalkDir(siteDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		refs, err := extractRefs(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		rel, err := filepath.Rel(siteDir, path)
		if err != nil {
			rel = entry.Name()
		}

		for _, ref := range refs {
			target, ok := internalTarget(ref.target)
			if !ok {
				continue
			}
			resolved := filepath.Join(filepath.Dir(path), filepath.FromSlash(target))
			if _, statErr := os.Stat(resolved); statErr != nil {
				broken = append(broken, Broken{SourceFile: rel, Target: ref.target, Tag: ref.tag})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return broken, nil
}

type ref struct {
	tag    string
	target string
}

// extractRefs pulls link-like attributes out of an HTML document.
func extractRefs(r io.Reader) ([]ref, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var refs []ref
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attrName, ok := linkAttrs[n.Data]; ok {
				for _, attr := range n.Attr {
					if attr.Key == attrName && attr.Val != "" {
						refs = append(refs, ref{tag: n.Data, target: attr.Val})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

// internalTarget reports whether target points inside the site and returns
// the path portion with any fragment/query stripped.
func internalTarget(target string) (string, bool) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	if u.Path == "" { // pure fragment like #section
		return "", false
	}
	return u.Path, true
}
