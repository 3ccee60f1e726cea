package engine

import (
	"regexp"
	"strings"
)

var containsPattern = regexp.MustCompile(`(.+)\.contains\(["'](.+)["']\)`)

// Evaluate resolves a condition expression against the incoming message and
// the session variables. The grammar is fixed to three forms:
//
//	LHS == "literal"
//	LHS != "literal"
//	LHS.contains("substr")
//
// LHS is user.message/message (the incoming text) or a variable name. A
// variable that is unset or holds the empty string compares as its own name
// for ==/!= and as the empty string for contains. Anything unparsable
// evaluates to false so a broken expression routes to the "no" branch
// instead of failing the turn.
func Evaluate(expression string, incomingText string, variables map[string]any) bool {
	if strings.Contains(expression, "==") {
		left, right := splitOperands(expression, "==")
		return resolveOperand(left, incomingText, variables) == stripQuotes(right)
	}
	if strings.Contains(expression, "!=") {
		left, right := splitOperands(expression, "!=")
		return resolveOperand(left, incomingText, variables) != stripQuotes(right)
	}
	if strings.Contains(expression, "contains") {
		match := containsPattern.FindStringSubmatch(expression)
		if match != nil {
			left := strings.TrimSpace(match[1])
			var leftVal string
			if left == "user.message" || left == "message" {
				leftVal = incomingText
			} else if v, ok := variables[left]; ok {
				leftVal = Stringify(v)
			}
			return strings.Contains(leftVal, match[2])
		}
	}
	return false
}

func splitOperands(expression string, op string) (string, string) {
	parts := strings.SplitN(expression, op, 2)
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func resolveOperand(left string, incomingText string, variables map[string]any) string {
	if left == "user.message" || left == "message" {
		return incomingText
	}
	if v, ok := variables[left]; ok {
		if s := Stringify(v); s != "" {
			return s
		}
	}
	// an unset or empty variable compares as its own name
	return left
}

// stripQuotes removes every single and double quote, mirroring the naive
// quoting rules the editor emits. "sim" and 'sim' and sim all compare equal.
func stripQuotes(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	return strings.ReplaceAll(s, "'", "")
}
