package op

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire form of a single operation: a type tag plus the
// variant's own JSON. Operation order inside a transaction is carried by
// array order and must be preserved for reverse replay to be correct.
type envelope struct {
	Type Type            `json:"type"`
	Op   json.RawMessage `json:"op"`
}

// Marshal serializes one operation.
func Marshal(o Operation) ([]byte, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("op: marshal %s: %w", o.Type(), err)
	}
	return json.Marshal(envelope{Type: o.Type(), Op: payload})
}

// Unmarshal deserializes one operation.
func Unmarshal(data []byte) (Operation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("op: unmarshal envelope: %w", err)
	}
	var (
		o   Operation
		err error
	)
	switch env.Type {
	case TypeSetCellValues:
		var v SetCellValues
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeSetDataTable:
		var v SetDataTable
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeComputeCell:
		var v ComputeCell
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeAddSheet:
		var v AddSheet
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeDeleteSheet:
		var v DeleteSheet
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeSetSheetName:
		var v SetSheetName
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeReorderSheet:
		var v ReorderSheet
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeResizeColumn:
		var v ResizeColumn
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeResizeRow:
		var v ResizeRow
		err = json.Unmarshal(env.Op, &v)
		o = v
	case TypeSetCellFormats:
		var v SetCellFormats
		err = json.Unmarshal(env.Op, &v)
		o = v
	default:
		return nil, fmt.Errorf("op: unknown operation type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("op: unmarshal %s: %w", env.Type, err)
	}
	return o, nil
}

// MarshalList serializes an ordered operation list.
func MarshalList(ops []Operation) ([]byte, error) {
	raws := make([]json.RawMessage, len(ops))
	for i, o := range ops {
		raw, err := Marshal(o)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// UnmarshalList deserializes an ordered operation list.
func UnmarshalList(data []byte) ([]Operation, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("op: unmarshal operation list: %w", err)
	}
	ops := make([]Operation, len(raws))
	for i, raw := range raws {
		o, err := Unmarshal(raw)
		if err != nil {
			return nil, err
		}
		ops[i] = o
	}
	return ops, nil
}
