package probe

import (
	"testing"

	"github.com/sageships/DevPorts/internal/models"
)

func testPolicy() Policy {
	return NewPolicy(
		[]int{3000, 5173, 8080},
		[]string{"ControlCe", "rapportd"},
	)
}

func TestFilterDropsDisallowedPorts(t *testing.T) {
	records := []models.ListenerRecord{
		{Port: 3000, Pid: 1, ProcessName: "node"},
		{Port: 6379, Pid: 2, ProcessName: "redis-server"},
	}
	out := Filter(records, testPolicy())
	if len(out) != 1 || out[0].Port != 3000 {
		t.Fatalf("expected only port 3000, got %+v", out)
	}
}

func TestFilterDropsExcludedProcessNames(t *testing.T) {
	records := []models.ListenerRecord{
		{Port: 5173, Pid: 1, ProcessName: "ControlCe"},
		{Port: 8080, Pid: 2, ProcessName: "node"},
	}
	out := Filter(records, testPolicy())
	if len(out) != 1 || out[0].ProcessName != "node" {
		t.Fatalf("expected only node, got %+v", out)
	}
}

func TestFilterDropsInitProcess(t *testing.T) {
	records := []models.ListenerRecord{
		{Port: 3000, Pid: 1, ProcessName: InitProcessName},
	}
	if out := Filter(records, testPolicy()); len(out) != 0 {
		t.Fatalf("expected init process to be dropped, got %+v", out)
	}
}

func TestFilterDedupKeepsFirstOccurrence(t *testing.T) {
	records := []models.ListenerRecord{
		{Port: 3000, Pid: 10, ProcessName: "node"},
		{Port: 3000, Pid: 20, ProcessName: "python"},
	}
	out := Filter(records, testPolicy())
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if out[0].Pid != 10 {
		t.Fatalf("expected first-encountered record to win, got pid %d", out[0].Pid)
	}
}

func TestFilterSortsByPort(t *testing.T) {
	records := []models.ListenerRecord{
		{Port: 8080, Pid: 1, ProcessName: "node"},
		{Port: 3000, Pid: 2, ProcessName: "node"},
		{Port: 5173, Pid: 3, ProcessName: "vite"},
	}
	out := Filter(records, testPolicy())
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	for i, want := range []int{3000, 5173, 8080} {
		if out[i].Port != want {
			t.Fatalf("expected port %d at index %d, got %d", want, i, out[i].Port)
		}
	}
}
