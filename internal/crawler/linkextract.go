package crawler

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"
)

// linkAttrByTag names the tags (and the attribute carrying a reference)
// whose targets the crawler will enqueue as child URLs.
var linkAttrByTag = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
}

// extractSameOriginLinks tokenizes body as HTML and returns the
// absolute URLs of every href/src reference that resolves to the same
// scheme://host as pageURL. A tokenizer is used rather than a regexp
// because attribute order and quoting style vary across archived
// pages in ways a tokenizer handles for free.
func extractSameOriginLinks(pageURL string, body []byte) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []string
	seen := map[string]bool{}
	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			attrName, ok := linkAttrByTag[string(name)]
			if !ok || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == attrName {
					if abs := resolveSameOrigin(base, string(val)); abs != "" && !seen[abs] {
						seen[abs] = true
						links = append(links, abs)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// resolveSameOrigin resolves ref against base and returns its absolute
// form, or "" if ref is empty, unparsable, or a different origin.
func resolveSameOrigin(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != base.Scheme || abs.Host != base.Host {
		return ""
	}
	return abs.String()
}
