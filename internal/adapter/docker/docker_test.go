package docker

import (
	"encoding/json"
	"testing"

	"github.com/Strob0t/AgentFleet/internal/port/runtime"
)

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		stderr string
		want   bool
	}{
		{"Error: No such container: agentfleet-scout", true},
		{"Error: No such object: agentfleet-scout", true},
		{"Cannot connect to the Docker daemon", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isNotFound(tc.stderr); got != tc.want {
			t.Errorf("isNotFound(%q) = %v, want %v", tc.stderr, got, tc.want)
		}
	}
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12.34%", 12.34},
		{"0.00%", 0},
		{" 5% ", 5},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parsePercent(tc.in); got != tc.want {
			t.Errorf("parsePercent(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInspectDocDecoding(t *testing.T) {
	raw := `{"Id":"abc123","Name":"/agentfleet-scout","State":{"Running":true,"Status":"running"},"Config":{"Labels":{"agentfleet.managed":"true"}}}`

	var doc inspectDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.ID != "abc123" {
		t.Fatalf("ID = %q", doc.ID)
	}
	if !doc.State.Running || doc.State.Status != "running" {
		t.Fatalf("state = %+v", doc.State)
	}
	if doc.Config.Labels["agentfleet.managed"] != "true" {
		t.Fatalf("labels = %v", doc.Config.Labels)
	}
}

func TestCreateArgs(t *testing.T) {
	spec := runtime.CreateSpec{
		Name:    "agentfleet-scout",
		Image:   "agentfleet/runner:latest",
		Env:     []string{"AGENT_NAME=scout"},
		Binds:   []string{"/etc/agentfleet:/etc/agentfleet:ro"},
		Network: "bridge",
		Labels:  map[string]string{"agentfleet.managed": "true"},
		Command: []string{"sleep", "infinity"},
	}

	args := createArgs(spec)

	want := []string{
		"create", "--name", "agentfleet-scout",
		"--label", "agentfleet.managed=true",
		"--network", "bridge",
		"-e", "AGENT_NAME=scout",
		"-v", "/etc/agentfleet:/etc/agentfleet:ro",
		"agentfleet/runner:latest",
		"sleep", "infinity",
	}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q (full: %v)", i, args[i], want[i], args)
		}
	}
}
