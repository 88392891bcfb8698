package agent

import "regexp"

// Lazy and single-line, so each $...$ pair is handled on its own.
var dollarMath = regexp.MustCompile(`\$\s*(.*?)\s*\$`)

// NormalizeMath removes whitespace just inside $...$ spans, turning "$ x $"
// into "$x$". Applying it twice gives the same result as applying it once.
func NormalizeMath(s string) string {
	return dollarMath.ReplaceAllString(s, "$$${1}$$")
}
