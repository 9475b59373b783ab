package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/elee1766/threadagent/src/aisdk"
)

// JSONStringArray is a custom type for handling JSON arrays stored as strings in the database
type JSONStringArray []string

// Scan implements the sql.Scanner interface for JSONStringArray
func (j *JSONStringArray) Scan(value interface{}) error {
	*j = []string{}
	return scanJSON(value, j)
}

// Value implements the driver.Valuer interface for JSONStringArray
func (j JSONStringArray) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "[]", nil
	}
	return valueJSON(j)
}

// JSONRaw holds an arbitrary JSON document. A nil JSONRaw is stored as NULL.
type JSONRaw json.RawMessage

// Scan implements the sql.Scanner interface for JSONRaw
func (j *JSONRaw) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case string:
		*j = JSONRaw(v)
	case []byte:
		*j = append(JSONRaw(nil), v...)
	default:
		return fmt.Errorf("cannot scan type %T into JSONRaw", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for JSONRaw
func (j JSONRaw) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// MarshalJSON passes the document through unchanged.
func (j JSONRaw) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of data.
func (j *JSONRaw) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// ContentBlocks is the ordered content of a message.
type ContentBlocks []aisdk.ContentBlock

// Scan implements the sql.Scanner interface for ContentBlocks
func (c *ContentBlocks) Scan(value interface{}) error {
	*c = ContentBlocks{}
	return scanJSON(value, c)
}

// Value implements the driver.Valuer interface for ContentBlocks
func (c ContentBlocks) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	return valueJSON(c)
}

// RevisionHistory lists the rejected attempts that preceded a tool call.
type RevisionHistory []Revision

// Scan implements the sql.Scanner interface for RevisionHistory
func (r *RevisionHistory) Scan(value interface{}) error {
	*r = RevisionHistory{}
	return scanJSON(value, r)
}

// Value implements the driver.Valuer interface for RevisionHistory
func (r RevisionHistory) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "[]", nil
	}
	return valueJSON(r)
}

// Scan implements the sql.Scanner interface for ExecutionCheckpoint
func (c *ExecutionCheckpoint) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// Value implements the driver.Valuer interface for ExecutionCheckpoint
func (c ExecutionCheckpoint) Value() (driver.Value, error) {
	return valueJSON(c)
}

// Scan implements the sql.Scanner interface for RequestResults
func (r *RequestResults) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// Value implements the driver.Valuer interface for RequestResults
func (r RequestResults) Value() (driver.Value, error) {
	return valueJSON(r)
}

func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("cannot scan type %T into %T", value, dest)
	}
}

func valueJSON(v interface{}) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
