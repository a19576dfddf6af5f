package operations

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed set of schedulable work types.
type Kind int

const (
	Compile Kind = iota + 1
	Evaluate
	UserTestCompile
	UserTestEvaluate
)

const (
	kindCompileStr          = "compile"
	kindEvaluateStr         = "evaluate"
	kindUserTestCompileStr  = "compile_test"
	kindUserTestEvaluateStr = "evaluate_test"
)

func (k Kind) String() string {
	switch k {
	case Compile:
		return kindCompileStr
	case Evaluate:
		return kindEvaluateStr
	case UserTestCompile:
		return kindUserTestCompileStr
	case UserTestEvaluate:
		return kindUserTestEvaluateStr
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func KindFromString(s string) (Kind, error) {
	switch s {
	case kindCompileStr:
		return Compile, nil
	case kindEvaluateStr:
		return Evaluate, nil
	case kindUserTestCompileStr:
		return UserTestCompile, nil
	case kindUserTestEvaluateStr:
		return UserTestEvaluate, nil
	default:
		return 0, fmt.Errorf("unknown operation type %q", s)
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := KindFromString(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Operation is the immutable identity of one unit of work: compile a
// submission or user test against a dataset, or evaluate it on one testcase.
// Two operations are equal iff all four fields match, so the zero-overhead
// struct comparison doubles as the dedup key.
type Operation struct {
	Kind      Kind
	ObjectID  uint
	DatasetID uint

	// TestcaseCodename is set only for the evaluate kinds.
	TestcaseCodename string
}

// ShortKey groups all per-testcase evaluate operations of one
// submission/dataset pair for display and bookkeeping.
type ShortKey struct {
	Kind      Kind
	ObjectID  uint
	DatasetID uint
}

func (op Operation) Short() ShortKey {
	return ShortKey{Kind: op.Kind, ObjectID: op.ObjectID, DatasetID: op.DatasetID}
}

// ForSubmission reports whether the operation refers to a submission rather
// than a user test.
func (op Operation) ForSubmission() bool {
	return op.Kind == Compile || op.Kind == Evaluate
}

// IsEvaluate reports whether the operation carries a testcase.
func (op Operation) IsEvaluate() bool {
	return op.Kind == Evaluate || op.Kind == UserTestEvaluate
}

func (op Operation) String() string {
	if op.IsEvaluate() {
		return fmt.Sprintf("%s(object=%d, dataset=%d, testcase=%s)",
			op.Kind, op.ObjectID, op.DatasetID, op.TestcaseCodename)
	}
	return fmt.Sprintf("%s(object=%d, dataset=%d)", op.Kind, op.ObjectID, op.DatasetID)
}

// The wire shape is shared by the worker transport and side-data
// persistence: testcase_codename is null except for the evaluate kinds.
type operationWire struct {
	Type             string  `json:"type"`
	ObjectID         uint    `json:"object_id"`
	DatasetID        uint    `json:"dataset_id"`
	TestcaseCodename *string `json:"testcase_codename"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	wire := operationWire{
		Type:      op.Kind.String(),
		ObjectID:  op.ObjectID,
		DatasetID: op.DatasetID,
	}
	if op.IsEvaluate() {
		codename := op.TestcaseCodename
		wire.TestcaseCodename = &codename
	}
	return json.Marshal(&wire)
}

func (op *Operation) UnmarshalJSON(data []byte) error {
	var wire operationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	kind, err := KindFromString(wire.Type)
	if err != nil {
		return err
	}
	op.Kind = kind
	op.ObjectID = wire.ObjectID
	op.DatasetID = wire.DatasetID
	op.TestcaseCodename = ""
	if op.IsEvaluate() && wire.TestcaseCodename != nil {
		op.TestcaseCodename = *wire.TestcaseCodename
	}
	return nil
}
