package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Alpha Vantage answers throttled or invalid requests with one of these keys instead of data.
var providerMessageKeys = []string{"Error Message", "Note", "Information"}

type object = map[string]any

func decodeObject(domain Domain, raw []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload object
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedPayload, domain, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: %s payload is null", ErrMalformedPayload, domain)
	}
	return payload, nil
}

// requireObject returns payload[key] as an object or a MissingDataBlockError.
func requireObject(domain Domain, payload object, key string) (object, error) {
	value, ok := payload[key]
	if !ok || value == nil {
		return nil, missingBlock(domain, payload, key)
	}
	block, ok := value.(object)
	if !ok {
		return nil, fmt.Errorf("%w: %s payload: %q is not an object", ErrMalformedPayload, domain, key)
	}
	return block, nil
}

// requirePrefixedObject finds the first (sorted) key starting with prefix, e.g. "Time Series (".
func requirePrefixedObject(domain Domain, payload object, prefix string) (object, error) {
	var match string
	for key := range payload {
		if strings.HasPrefix(key, prefix) && (match == "" || key < match) {
			match = key
		}
	}
	if match == "" {
		return nil, missingBlock(domain, payload, prefix+"...")
	}
	return requireObject(domain, payload, match)
}

func missingBlock(domain Domain, payload object, key string) error {
	err := &MissingDataBlockError{Domain: domain, Key: key}
	for _, k := range providerMessageKeys {
		if msg, ok := payload[k].(string); ok && msg != "" {
			err.Detail = msg
			break
		}
	}
	return err
}

// numbered looks up an Alpha Vantage style key such as "2. Symbol" by its label,
// ignoring the ordinal prefix and case.
func numbered(obj object, label string) (any, bool) {
	if v, ok := obj[label]; ok {
		return v, true
	}
	var match string
	for key := range obj {
		if strings.EqualFold(stripOrdinal(key), label) && (match == "" || key < match) {
			match = key
		}
	}
	if match == "" {
		return nil, false
	}
	return obj[match], true
}

func numberedString(obj object, label string) string {
	v, _ := numbered(obj, label)
	return stringify(v)
}

func stripOrdinal(key string) string {
	idx := strings.Index(key, ". ")
	if idx <= 0 || idx > 3 {
		return key
	}
	return key[idx+2:]
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
