package fetch

import (
	"net/url"
	"sort"
	"strings"
)

// resolveURI combines base + rel + query per spec.md §4.1:
//   - an absolute rel ignores base entirely
//   - otherwise the two are joined with exactly one "/" between them
//   - query params are merged with any query already present on rel, with
//     caller-supplied keys overriding existing ones, then RFC 3986
//     percent-encoded by net/url's Encode.
func resolveURI(base, rel string, query map[string][]string) (string, error) {
	relURL, err := url.Parse(rel)
	if err != nil {
		return "", newError(KindInvalidInput, "invalid request URL: "+rel, err)
	}

	var resolved *url.URL
	if isURLAbsolute(relURL) || base == "" {
		resolved = relURL
	} else {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", newError(KindInvalidInput, "invalid base URI: "+base, err)
		}
		resolved = joinPath(baseURL, relURL)
	}

	if len(query) > 0 {
		q := resolved.Query()
		for k, vs := range query {
			q[k] = vs
		}
		resolved.RawQuery = q.Encode()
	}

	return resolved.String(), nil
}

// joinPath joins base and rel with exactly one "/" between base-path and
// rel, per spec.md §4.1. rel's own query/fragment win.
func joinPath(base, rel *url.URL) *url.URL {
	out := *base
	basePath := strings.TrimSuffix(base.Path, "/")
	relPath := strings.TrimPrefix(rel.Path, "/")
	if relPath == "" {
		out.Path = base.Path
	} else if basePath == "" {
		out.Path = "/" + relPath
	} else {
		out.Path = basePath + "/" + relPath
	}
	if rel.RawQuery != "" {
		out.RawQuery = rel.RawQuery
	}
	if rel.Fragment != "" {
		out.Fragment = rel.Fragment
	}
	return &out
}

// normalizeURI is used only for cache keying (spec.md §4.1): lowercase
// scheme/host, elide default ports, empty path becomes "/", query pairs
// sorted by key then value, fragment stripped. Idempotent and commutes with
// query-param reordering.
func normalizeURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", newError(KindInvalidInput, "invalid URI for normalization: "+raw, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		q := u.Query()
		u.RawQuery = sortedQueryString(q)
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// sortedQueryString renders q deterministically: pairs sorted by key then
// value, percent-encoded the way url.Values.Encode does.
func sortedQueryString(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), q[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
