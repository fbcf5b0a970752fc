package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDocument   = "resmodel/document/v1"
	DomainDefinition = "resmodel/definition/v1"
	DomainOperation  = "resmodel/operation/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentHash computes the content hash of a resource document. Two trees
// with equal documents hash equally regardless of construction order.
func DocumentHash(doc Object) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("DocumentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// OperationHash computes the content hash of an operation's canonical form.
func OperationHash(op Operation) (string, error) {
	canonical, err := MarshalCanonical(op.ToObject())
	if err != nil {
		return "", fmt.Errorf("OperationHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// DefinitionsHash computes the hash identifying a set of compiled
// definitions. The journal records it so replays can detect a definition
// change.
func DefinitionsHash(defs []*ResourceDefinition) (string, error) {
	canonical, err := CanonicalJSON(defs)
	if err != nil {
		return "", fmt.Errorf("DefinitionsHash: %w", err)
	}
	return hashWithDomain(DomainDefinition, canonical), nil
}

// CanonicalJSON marshals any JSON-encodable value and re-encodes it in
// canonical form.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	val, err := parseLoose(data)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(val)
}

// parseLoose is ParseValue with JSON null fields dropped from objects.
// Struct encodings carry nulls for nil slices and maps.
func parseLoose(data []byte) (Value, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(dropNulls(raw))
}

func dropNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if elem == nil {
				continue
			}
			out[k] = dropNulls(elem)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			if elem == nil {
				continue
			}
			out = append(out, dropNulls(elem))
		}
		return out
	default:
		return v
	}
}
