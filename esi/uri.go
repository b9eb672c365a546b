package esi

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// BuildDataURI expands template with pathParams and returns the absolute
// URL for base, version and datasource. Every {placeholder} must have a
// value in pathParams or ErrURIDataMissing is returned. User query keys
// are emitted sorted and datasource always comes last.
func BuildDataURI(base, template string, pathParams map[string]string, query map[string]any, version, datasource string) (*url.URL, error) {
	var missing []string
	path := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := pathParams[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no value for %s in %s", ErrURIDataMissing, strings.Join(missing, ", "), template)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + normalizeVersion(version) + path)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	u.RawQuery = encodeQuery(flattenQuery(query), datasource)
	return u, nil
}

func encodeQuery(q map[string]string, datasource string) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		if k == "datasource" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q[k]))
		b.WriteByte('&')
	}
	b.WriteString("datasource=")
	b.WriteString(url.QueryEscape(datasource))
	return b.String()
}

// flattenQuery turns list values into comma separated strings
func flattenQuery(query map[string]any) map[string]string {
	out := make(map[string]string, len(query))
	for k, v := range query {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []string:
			out[k] = strings.Join(val, ",")
		case []int:
			parts := make([]string, len(val))
			for i, n := range val {
				parts[i] = fmt.Sprint(n)
			}
			out[k] = strings.Join(parts, ",")
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[k] = strings.Join(parts, ",")
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func normalizeVersion(v string) string {
	v = strings.Trim(strings.TrimSpace(v), "/")
	if v == "" {
		return DefaultVersion
	}
	return "/" + v
}
