package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Token keys allow dots so flattened webhook variables ({{order.items.0}})
// resolve like any other variable.
var tokenPattern = regexp.MustCompile(`\{\{([\w.]+)\}\}`)

// Interpolate substitutes {{name}} tokens against the variable map.
// Unresolved tokens are left verbatim, never an error: downstream content
// must tolerate a literal {{x}} in a sent message.
func Interpolate(text string, variables map[string]any) string {
	if text == "" || len(variables) == 0 {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-2]
		if value, ok := variables[name]; ok {
			return Stringify(value)
		}
		return token
	})
}

// Stringify renders a variable value the way it should appear in message
// text. Maps and slices render as compact JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
