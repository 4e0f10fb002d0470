// Package jsonpatch applies configured overrides to entity payloads.
package jsonpatch

import (
	"encoding/json"
	"fmt"

	jp "github.com/evanphx/json-patch/v5"
)

type PatchError struct {
	msg string
}

func (p *PatchError) Error() string {
	return p.msg
}

type Patch = jp.Patch

var opts = jp.ApplyOptions{
	EnsurePathExistsOnAdd:    true, // will create paths
	AllowMissingPathOnRemove: true,
}

// Decode builds a patch from operations given as plain maps, as they come
// out of the configuration file.
func Decode(ops []map[string]any) (Patch, error) {
	bs, err := json.Marshal(ops)
	if err != nil {
		return nil, &PatchError{fmt.Sprintf("invalid patch: %v", err)}
	}
	p, err := jp.DecodePatch(bs)
	if err != nil {
		return nil, &PatchError{fmt.Sprintf("invalid patch: %v", err)}
	}
	return p, nil
}

func Apply(p Patch, doc json.RawMessage) (json.RawMessage, error) {
	// We only support add/remove/replace
	for _, op := range p {
		switch op.Kind() {
		case "replace", "remove", "add": // OK
		default:
			return nil, &PatchError{fmt.Sprintf("unsupported patch operation %q, must be one of \"replace\", \"add\", \"remove\"", op.Kind())}
		}
	}
	return p.ApplyWithOptions(doc, &opts)
}

// ApplyToFields patches a structured entity payload. The input map is not
// modified.
func ApplyToFields(p Patch, fields map[string]any) (map[string]any, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	doc, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	patched, err := Apply(p, doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, err
	}
	return out, nil
}
