package captcha

import "net/http"

// An Extractor pulls a captcha token out of one location on the request.
// It returns the token and whether that location held one.
type Extractor func(header http.Header, body map[string]any) (string, bool)

// BodyField extracts a string field from the decoded JSON request body.
func BodyField(name string) Extractor {
	return func(_ http.Header, body map[string]any) (string, bool) {
		v, ok := body[name].(string)
		return v, ok && v != ""
	}
}

// HeaderField extracts the token from a request header.
func HeaderField(name string) Extractor {
	return func(header http.Header, _ map[string]any) (string, bool) {
		v := header.Get(name)
		return v, v != ""
	}
}

// DefaultExtractors is the ordered search list: the camelCase body field,
// then the snake_case body field, then the dedicated header. The first
// non-empty hit wins.
var DefaultExtractors = []Extractor{
	BodyField("captchaToken"),
	BodyField("captcha_token"),
	HeaderField("X-Captcha-Token"),
}

// ExtractToken runs the extractors in order and returns the first token
// found, or the empty string when every location is empty.
func ExtractToken(header http.Header, body map[string]any, extractors []Extractor) string {
	for _, extract := range extractors {
		if token, ok := extract(header, body); ok {
			return token
		}
	}
	return ""
}
