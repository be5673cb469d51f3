package service

import (
	"context"
	"strings"
	"testing"

	"github.com/Strob0t/AgentFleet/internal/domain/agent"
)

type chatFixture struct {
	rt    *fakeRuntime
	store *fakeStore
	chat  *ChatService
}

func newChatFixture() *chatFixture {
	rt := newFakeRuntime()
	store := newFakeStore()
	queue := newFakeQueue()
	tasks := NewTaskStore(store, queue, 500, testLogger())
	dispatcher := newTestDispatcher(rt, &ExecutionMode{}, testDispatchConfig())
	metrics := newTestMetrics(store, tasks)
	orch := NewOrchestrator(store, tasks, dispatcher, metrics, queue, testLogger())
	agents := newTestAgentService(rt, store, queue)
	return &chatFixture{rt: rt, store: store, chat: NewChatService(agents, orch, testLogger())}
}

func TestChatRoutesToNamedAgent(t *testing.T) {
	f := newChatFixture()
	f.rt.execOut = []byte(`{"text": "here is the summary"}`)
	f.store.addAgent(agent.Agent{Name: "researcher", Status: agent.StatusRunning})

	reply, err := f.chat.HandleEvent(context.Background(), ChatEvent{
		AgentOrCommand: "researcher",
		Text:           "summarize",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if reply != "here is the summary" {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatFallsBackToDirector(t *testing.T) {
	f := newChatFixture()
	f.rt.execOut = []byte(`{"text": "director here"}`)
	f.store.addAgent(agent.Agent{Name: "director", Status: agent.StatusRunning, Director: true})

	reply, err := f.chat.HandleEvent(context.Background(), ChatEvent{
		AgentOrCommand: "no-such-agent",
		Text:           "who handles this?",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if reply != "director here" {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatUnknownAgentNoDirector(t *testing.T) {
	f := newChatFixture()

	reply, err := f.chat.HandleEvent(context.Background(), ChatEvent{
		AgentOrCommand: "ghost",
		Text:           "hello?",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if !strings.Contains(reply, "No agent") {
		t.Errorf("reply = %q, want unknown-agent message", reply)
	}
}

func TestChatStatusCommand(t *testing.T) {
	f := newChatFixture()
	f.store.addAgent(agent.Agent{Name: "a", Status: agent.StatusRunning})
	f.store.addAgent(agent.Agent{Name: "b", Status: agent.StatusPaused})

	reply, err := f.chat.HandleEvent(context.Background(), ChatEvent{AgentOrCommand: "status"})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if !strings.Contains(reply, "2 agents") || !strings.Contains(reply, "1 running") {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatParksForPausedAgent(t *testing.T) {
	f := newChatFixture()
	f.store.addAgent(agent.Agent{Name: "sleepy", Status: agent.StatusPaused})

	reply, err := f.chat.HandleEvent(context.Background(), ChatEvent{
		AgentOrCommand: "sleepy",
		Text:           "wake up later",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if !strings.Contains(reply, "parked") {
		t.Errorf("reply = %q, want parked notice", reply)
	}
	if len(f.rt.calls) != 0 {
		t.Errorf("runtime touched for parked message: %v", f.rt.calls)
	}
}
