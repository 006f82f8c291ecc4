package wsserver

import "encoding/json"

func marshalFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","code":"SYSTEM_INTERNAL","message":"internal error"}`)
	}
	return data
}
