package probe

import "testing"

func TestParseExtractsRecords(t *testing.T) {
	lines := []string{
		"COMMAND     PID USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME",
		"node      41234  dev   23u  IPv4 0x8c7e9f12      0t0  TCP *:3000 (LISTEN)",
		"python3    5120  dev    4u  IPv4 0x11aa22bb      0t0  TCP 127.0.0.1:8000 (LISTEN)",
	}

	records := Parse(lines)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ProcessName != "node" || records[0].Pid != 41234 || records[0].Port != 3000 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].ProcessName != "python3" || records[1].Port != 8000 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestParsePortAfterLastColon(t *testing.T) {
	lines := []string{
		"node      41234  dev   24u  IPv6 0x00000000      0t0  TCP [::1]:5173 (LISTEN)",
	}
	records := Parse(lines)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Port != 5173 {
		t.Fatalf("expected port 5173, got %d", records[0].Port)
	}
}

func TestParseSkipsShortLines(t *testing.T) {
	lines := []string{
		"",
		"too few fields",
		"node 41234 dev 23u IPv4 0x0 0t0 TCP", // 8 列
	}
	if records := Parse(lines); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestParseSkipsMalformedPorts(t *testing.T) {
	lines := []string{
		"node      41234  dev   23u  IPv4 0x0      0t0  TCP *:http (LISTEN)",
		"node      41234  dev   23u  IPv4 0x0      0t0  TCP localhost (LISTEN)",
		"node      41234  dev   23u  IPv4 0x0      0t0  TCP *:70000 (LISTEN)",
	}
	if records := Parse(lines); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestParseKeepsInputOrder(t *testing.T) {
	lines := []string{
		"node      2  dev   23u  IPv4 0x0      0t0  TCP *:8080 (LISTEN)",
		"node      1  dev   23u  IPv4 0x0      0t0  TCP *:3000 (LISTEN)",
	}
	records := Parse(lines)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Port != 8080 || records[1].Port != 3000 {
		t.Fatalf("input order not preserved: %+v", records)
	}
}
