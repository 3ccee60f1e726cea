package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	vars := map[string]any{
		"name":  "Alice",
		"count": 3,
		"blank": "",
	}
	for scenario, tc := range map[string]struct {
		expression string
		text       string
		expected   bool
	}{
		"message equals quoted literal":     {`message == "sim"`, "sim", true},
		"message equals unquoted literal":   {`message == sim`, "sim", true},
		"message equals single quoted":      {`message == 'sim'`, "sim", true},
		"user.message alias":                {`user.message == "ok"`, "ok", true},
		"equality miss":                     {`message == "sim"`, "não", false},
		"variable equality":                 {`name == "Alice"`, "", true},
		"numeric variable stringified":      {`count == "3"`, "", true},
		"not equal":                         {`name != "Bob"`, "", true},
		"not equal miss":                    {`name != "Alice"`, "", false},
		"unknown variable compares as name": {`missing == missing`, "", true},
		"empty variable compares as name":   {`blank == blank`, "", true},
		"empty variable never matches":      {`blank == ""`, "", false},
		"message contains":                  {`message.contains("meio")`, "no meio da frase", true},
		"variable contains":                 {`name.contains("lic")`, "", true},
		"contains miss":                     {`message.contains("xyz")`, "abc", false},
		"unknown variable contains":         {`missing.contains("x")`, "", false},
		"unparsable is false":               {`just some words`, "just some words", false},
		"empty expression is false":         {``, "anything", false},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.Equal(t, tc.expected, Evaluate(tc.expression, tc.text, vars))
		})
	}
}
