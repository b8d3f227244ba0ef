package host

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

var emptyObject = json.RawMessage(`{"type":"object","properties":{}}`)

func inputSchema(params *schema.ParamsOneOf) (json.RawMessage, error) {
	if params == nil {
		return emptyObject, nil
	}
	js, err := params.ToJSONSchema()
	if err != nil {
		return nil, err
	}
	if js == nil {
		return emptyObject, nil
	}
	return json.Marshal(js)
}
