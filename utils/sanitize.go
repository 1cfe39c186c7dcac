package utils

import "github.com/microcosm-cc/bluemonday"

// Idea posts and comments accept user-authored HTML. The UGC policy strips
// scripts and event handlers; class attributes on code and pre survive so
// highlighted snippets keep their language hint.
var sanitizer = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre")
	return p
}

// Sanitize strips unsafe markup from user-authored content.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
