package encoding

import (
	jsoniter "github.com/json-iterator/go"
)

// JSONiter is the frozen codec used for persisted slice documents and
// HTTP payloads. UseNumber keeps integer record values (range bounds,
// row keys) from degrading to float64 on the way through.
var JSONiter = jsoniter.Config{
	EscapeHTML:              false,
	MarshalFloatWith6Digits: false,
	DisallowUnknownFields:   false,
	OnlyTaggedField:         false,
	ValidateJsonRawMessage:  false,
	CaseSensitive:           true,
	UseNumber:               true,
	SortMapKeys:             false,
}.Froze()

func Marshal(v interface{}) ([]byte, error) {
	return JSONiter.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return JSONiter.Unmarshal(data, v)
}
