package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"machrent/internal/models"

	"github.com/cockroachdb/errors"
)

// The backend has shipped several location shapes over time: a bare array or
// an envelope, id under different keys, street under "address" (flat or
// nested) and house numbers as numbers or strings. Everything is reduced to
// models.Location here and nowhere else.

var (
	locationIDKeys = []string{"id", "location_id", "_id"}
	streetKeys     = []string{"street", "address", "street_name"}
	streetNumKeys  = []string{"number", "street_number", "house_number"}
	envelopeKeys   = []string{"locations", "data", "items", "units"}
	unitIDKeys     = []string{"id", "unit_id", "serial", "_id"}
)

func normalizeLocations(data []byte) ([]models.Location, error) {
	items, err := unwrapList(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode locations")
	}

	out := make([]models.Location, 0, len(items))
	for _, raw := range items {
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, errors.Wrap(err, "decode location")
		}
		id, ok := int64Field(obj, locationIDKeys...)
		if !ok {
			continue
		}
		loc := models.Location{ID: id, City: stringField(obj, "city")}

		if nested, ok := obj["address"].(map[string]interface{}); ok {
			loc.Street = stringField(nested, streetKeys...)
			loc.Number = stringField(nested, streetNumKeys...)
			if loc.City == "" {
				loc.City = stringField(nested, "city")
			}
		} else {
			loc.Street = stringField(obj, streetKeys...)
			loc.Number = stringField(obj, streetNumKeys...)
		}
		out = append(out, loc)
	}
	return out, nil
}

// normalizeUnits accepts unit IDs as strings, numbers or objects.
func normalizeUnits(data []byte) ([]string, error) {
	items, err := unwrapList(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode units")
	}

	out := make([]string, 0, len(items))
	for _, raw := range items {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decode unit")
		}
		var id string
		switch t := v.(type) {
		case map[string]interface{}:
			id = stringField(t, unitIDKeys...)
		default:
			id = scalarString(t)
		}
		if id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

func unwrapList(data []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var list []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	for _, key := range envelopeKeys {
		if raw, ok := env[key]; ok {
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
	return nil, errors.New("no list in response envelope")
}

func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s := scalarString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func int64Field(obj map[string]interface{}, keys ...string) (int64, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int64(t), true
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
