package task

import (
	"testing"
	"time"
)

func TestContentReadyTask_ValueDecodes(t *testing.T) {
	original := &ContentReadyTask{
		RemoteID:    "SW-482",
		Slug:        "482-the-brave-fox",
		ContentPath: "content/482-the-brave-fox.txt",
		ReadyAt:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := original.TaskValue()
	if err != nil {
		t.Fatalf("task value: %v", err)
	}

	decoded, err := UnmarshalTask[*ContentReadyTask](data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Slug != original.Slug || decoded.ContentPath != original.ContentPath {
		t.Fatalf("unexpected decoded task: %+v", decoded)
	}
	if decoded.TaskType() != "ContentReadyTask" {
		t.Fatalf("unexpected task type %q", decoded.TaskType())
	}
}
