package model

import "testing"

func TestProcessStatus_Active(t *testing.T) {
	cases := map[ProcessStatus]bool{
		StatusPending:    false,
		StatusRunning:    true,
		StatusNeedsInput: true,
		StatusCompleted:  false,
		StatusFailed:     false,
	}
	for status, want := range cases {
		if got := status.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", status, got, want)
		}
	}
}

func TestProcessStatus_Valid(t *testing.T) {
	if !StatusRunning.Valid() {
		t.Error("StatusRunning should be valid")
	}
	if ProcessStatus("bogus").Valid() {
		t.Error("bogus status should not be valid")
	}
}

func TestIssueState_Key(t *testing.T) {
	st := IssueState{IssueNumber: 42, ProcessorName: ProcessorClaude}
	got := st.Key()
	want := Key{IssueNumber: 42, ProcessorName: ProcessorClaude}
	if got != want {
		t.Errorf("Key() = %+v, want %+v", got, want)
	}
}
