package engine

import (
	"encoding/json"

	"github.com/Jeffail/gabs/v2"
)

// FlattenPayload turns an arbitrary webhook JSON body into dotted-key
// variables under the given prefix: {"a":{"b":1}} with prefix "webhook"
// yields webhook.a.b = "1". Arrays and the whole payload are stored as
// compact JSON strings; <prefix>_raw always carries the full body.
func FlattenPayload(prefix string, body []byte) (map[string]any, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]any)
	vars[prefix+"_raw"] = parsed.String()
	for key, child := range parsed.ChildrenMap() {
		flattenInto(vars, prefix+"."+key, child)
	}
	return vars, nil
}

func flattenInto(vars map[string]any, key string, c *gabs.Container) {
	children := c.ChildrenMap()
	if len(children) > 0 {
		for k, child := range children {
			flattenInto(vars, key+"."+k, child)
		}
		return
	}
	switch data := c.Data().(type) {
	case map[string]any:
		// empty object, nothing to record
	case []any:
		b, err := json.Marshal(data)
		if err == nil {
			vars[key] = string(b)
		}
	default:
		vars[key] = Stringify(data)
	}
}
