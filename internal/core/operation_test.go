package core

import (
	"sort"
	"testing"
)

func TestOperation_Known(t *testing.T) {
	if !OpClone.Known() {
		t.Fatalf("clone should be a known operation")
	}
	if Operation("teleport").Known() {
		t.Fatalf("teleport should not be a known operation")
	}
	if Operation("").Known() {
		t.Fatalf("empty operation should not be known")
	}
}

func TestOperation_Classes(t *testing.T) {
	tests := []struct {
		op    Operation
		class OpClass
	}{
		{OpStatus, ClassLocal},
		{OpCommit, ClassLocal},
		{OpClone, ClassRemote},
		{OpPush, ClassRemote},
		{OpLFSPull, ClassRemote},
		{OpMerge, ClassMerge},
		{OpRebase, ClassMerge},
	}
	for _, tt := range tests {
		if got := tt.op.Class(); got != tt.class {
			t.Errorf("%s class = %d, want %d", tt.op, got, tt.class)
		}
	}
}

func TestOperation_AsyncImpliesScheduling(t *testing.T) {
	for _, op := range Operations() {
		if op.Class() == ClassLocal && op.IsAsync() {
			t.Errorf("%s is local but marked async", op)
		}
		if op.Class() == ClassRemote && !op.IsAsync() {
			t.Errorf("%s is remote but not async", op)
		}
	}
}

func TestOperation_CredentialNeeds(t *testing.T) {
	needs := []Operation{OpClone, OpPush, OpPull, OpFetch, OpLFSPull, OpLFSPush, OpLFSFetch, OpSubmoduleAdd, OpSubmoduleUpd}
	for _, op := range needs {
		if !op.NeedsCredential() {
			t.Errorf("%s should need a credential", op)
		}
	}
	for _, op := range []Operation{OpStatus, OpCommit, OpLog, OpMerge} {
		if op.NeedsCredential() {
			t.Errorf("%s should not need a credential", op)
		}
	}
}

func TestOperation_IdempotentSet(t *testing.T) {
	want := map[Operation]bool{
		OpClone:    true,
		OpFetch:    true,
		OpLog:      true,
		OpStatus:   true,
		OpDiff:     true,
		OpBlame:    true,
		OpLFSFetch: true,
	}
	for _, op := range Operations() {
		if got := op.Idempotent(); got != want[op] {
			t.Errorf("%s idempotent = %v, want %v", op, got, want[op])
		}
	}
}

func TestOperations_Sorted(t *testing.T) {
	ops := Operations()
	if len(ops) != len(operationTable) {
		t.Fatalf("Operations() returned %d entries, want %d", len(ops), len(operationTable))
	}
	if !sort.SliceIsSorted(ops, func(i, j int) bool { return ops[i] < ops[j] }) {
		t.Fatalf("Operations() should be sorted")
	}
}
