package versioning

import (
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/munnerz/goautoneg"
)

// HeaderName is the header and media-type parameter carrying a version.
const HeaderName = "x-api-version"

// Source identifies where a version signal was read from.
type Source string

const (
	SourceURLSegment Source = "url-segment"
	SourceHeader     Source = "header"
	SourceMediaType  Source = "media-type-parameter"
	SourceDefault    Source = "default"
)

// Signal is one source's claim about the version a request targets.
type Signal struct {
	Source Source
	Raw    string
}

// Extractor reads at most one signal from a request.
type Extractor struct {
	Source  Source
	Extract func(r *http.Request) (string, bool)
}

// DefaultExtractors returns the extractors in precedence order:
// URL segment, then header, then media-type parameter.
func DefaultExtractors() []Extractor {
	return []Extractor{
		URLSegmentExtractor(),
		HeaderExtractor(HeaderName),
		MediaTypeExtractor(HeaderName),
	}
}

var versionSegmentRE = regexp.MustCompile(`^[vV][0-9]+(\.[0-9]+)?$`)

// URLSegmentExtractor reads a leading path segment such as "v2.0".
func URLSegmentExtractor() Extractor {
	return Extractor{
		Source: SourceURLSegment,
		Extract: func(r *http.Request) (string, bool) {
			seg, _ := SplitVersionSegment(r.URL.Path)
			return seg, seg != ""
		},
	}
}

// SplitVersionSegment separates a leading version segment from the rest of
// path. It returns an empty segment when path does not start with one.
func SplitVersionSegment(path string) (segment, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	first, remainder, _ := strings.Cut(trimmed, "/")
	if !versionSegmentRE.MatchString(first) {
		return "", path
	}
	return first, "/" + remainder
}

// HeaderExtractor reads the named request header.
func HeaderExtractor(name string) Extractor {
	return Extractor{
		Source: SourceHeader,
		Extract: func(r *http.Request) (string, bool) {
			v := strings.TrimSpace(r.Header.Get(name))
			return v, v != ""
		},
	}
}

// MediaTypeExtractor reads the named parameter from the Content-Type media
// type, falling back to the most preferred Accept entry that carries it.
func MediaTypeExtractor(param string) Extractor {
	return Extractor{
		Source: SourceMediaType,
		Extract: func(r *http.Request) (string, bool) {
			if ct := r.Header.Get("Content-Type"); ct != "" {
				if _, params, err := mime.ParseMediaType(ct); err == nil {
					if v := strings.TrimSpace(params[strings.ToLower(param)]); v != "" {
						return v, true
					}
				}
			}

			accept := r.Header.Get("Accept")
			if accept == "" {
				return "", false
			}
			for _, a := range goautoneg.ParseAccept(accept) {
				for k, v := range a.Params {
					if strings.EqualFold(k, param) {
						if v = strings.Trim(strings.TrimSpace(v), `"`); v != "" {
							return v, true
						}
					}
				}
			}
			return "", false
		},
	}
}
