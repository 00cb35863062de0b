package utility

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

var errorNoHashableFields = errors.New("no hashable fields found")

// Hash - calculate the hash of the object.
// Only fields carrying a "hash" struct tag participate, so meta fields
// like timestamps and notes do not change the identity of an entity.
func Hash(obj interface{}) (string, error) {
	hashable := make(map[string]interface{})

	// Dereference the object if it is a pointer
	val := reflect.Indirect(reflect.ValueOf(obj))
	typ := val.Type()

	// Collect values of fields tagged with "hash"
	hasFields := false

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if _, ok := field.Tag.Lookup("hash"); ok {
			hashable[field.Name] = val.Field(i).Interface()
			hasFields = true
		}
	}

	if !hasFields {
		return "", errorNoHashableFields
	}

	// Sort the keys so serialization is deterministic
	keys := make([]string, 0, len(hashable))
	for k := range hashable {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	// Serialize the selected fields with gob, in sorted order
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	for _, key := range keys {
		if err := enc.Encode(hashable[key]); err != nil {
			return "", fmt.Errorf("failed to encode hashable fields: %w", err)
		}
	}

	hash := sha256.Sum256(buf.Bytes())

	return fmt.Sprintf("%x", hash), nil
}
