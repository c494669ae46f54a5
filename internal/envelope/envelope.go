// Package envelope unwraps the signed save-data response. The data server
// answers either {"data": <base64url JSON>, "signature": ...} or, for older
// responses, the bare record object.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pefman/medal-dashboard/internal/record"
)

// ErrDecode marks a malformed response body.
var ErrDecode = errors.New("malformed response")

// Envelope is the wrapped response shape. Signature is carried as received
// and never verified here.
type Envelope struct {
	Data      string `json:"data"`
	Signature string `json:"signature,omitempty"`
}

// Decode returns the record carried by body, unwrapping the envelope when a
// non-null data field is present.
func Decode(body []byte) (record.Record, error) {
	env, wrapped, err := Detect(body)
	if err != nil {
		return record.Record{}, err
	}
	payload := body
	if wrapped {
		payload, err = DecodeData(env.Data)
		if err != nil {
			return record.Record{}, err
		}
	}
	rec, err := record.Parse(payload)
	if err != nil {
		return record.Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return rec, nil
}

// Detect reports whether body is a wrapped envelope. Only the exact keys
// data, signature and sig are recognised; a bare record may carry fields
// such as "Data" of its own.
func Detect(body []byte) (Envelope, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Envelope{}, false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	raw, ok := fields["data"]
	if !ok || string(raw) == "null" {
		return Envelope{}, false, nil
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env.Data); err != nil {
		return Envelope{}, false, fmt.Errorf("%w: data: %v", ErrDecode, err)
	}
	for _, key := range []string{"signature", "sig"} {
		if v, ok := fields[key]; ok && string(v) != "null" {
			if err := json.Unmarshal(v, &env.Signature); err != nil {
				return Envelope{}, false, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
			}
			break
		}
	}
	return env, true, nil
}

// DecodeData maps the URL-safe alphabet back to standard base64, restores
// the padding and decodes.
func DecodeData(data string) ([]byte, error) {
	s := strings.TrimSpace(data)
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// Encode wraps rec the way the data server does, using base64url without
// padding.
func Encode(rec record.Record, signature string) ([]byte, error) {
	payload, err := rec.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Data:      base64.RawURLEncoding.EncodeToString(payload),
		Signature: signature,
	})
}
