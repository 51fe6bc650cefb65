package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeArguments parses the JSON arguments of a tool call.
//
// Models occasionally emit slightly malformed JSON (single quotes, trailing
// commas, unquoted keys); such input is repaired before giving up. Empty
// input decodes to an empty map.
func DecodeArguments(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	err := json.Unmarshal([]byte(raw), &args)
	if err == nil {
		return args, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w (repair failed: %v)", err, repairErr)
	}
	args = nil
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments after repair: %w", err)
	}
	return args, nil
}

// EncodeArguments is the inverse of DecodeArguments. A nil map encodes as "{}".
func EncodeArguments(args map[string]interface{}) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
