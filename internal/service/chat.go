package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/AgentFleet/internal/domain"
	"github.com/Strob0t/AgentFleet/internal/domain/agent"
	"github.com/Strob0t/AgentFleet/internal/domain/task"
)

// ChatEvent is one pre-verified, de-duplicated message from the external
// webhook layer. Signature verification and event dedup happen upstream.
type ChatEvent struct {
	// AgentOrCommand is either a fleet command (status, agents) or the
	// name of the agent the message is addressed to.
	AgentOrCommand string `json:"agent"`
	Text           string `json:"text"`
	ReplyToken     string `json:"reply_token,omitempty"`
}

// ChatService turns inbound chat events into agent executions or fleet
// commands and returns plain reply text for the webhook layer to post back.
type ChatService struct {
	agents       *AgentService
	orchestrator *Orchestrator
	log          *slog.Logger
}

// NewChatService creates a ChatService.
func NewChatService(agents *AgentService, orchestrator *Orchestrator, log *slog.Logger) *ChatService {
	return &ChatService{agents: agents, orchestrator: orchestrator, log: log}
}

// HandleEvent processes one chat event and returns the reply text.
// Unaddressed messages go to the director agent when one exists.
func (s *ChatService) HandleEvent(ctx context.Context, ev ChatEvent) (string, error) {
	switch strings.ToLower(strings.TrimSpace(ev.AgentOrCommand)) {
	case "status":
		return s.fleetStatus(ctx)
	case "agents":
		return s.agentList(ctx)
	}

	ag, err := s.resolveTarget(ctx, ev.AgentOrCommand)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Sprintf("No agent named %q. Try `agents` to list the fleet.", ev.AgentOrCommand), nil
		}
		return "", err
	}

	meta := map[string]string{}
	if ev.ReplyToken != "" {
		meta["reply_token"] = ev.ReplyToken
	}

	t, res, err := s.orchestrator.ExecuteSync(ctx, ag, ev.Text, meta)
	if err != nil {
		return "", err
	}
	if t != nil && t.Status == task.StatusParked {
		return fmt.Sprintf("%s is %s right now; your message is parked as task %s and will run when the agent resumes.", ag.Name, ag.Status, t.ID), nil
	}
	if !res.Success {
		return fmt.Sprintf("%s could not complete that: %s", ag.Name, res.Error), nil
	}
	return res.Reply, nil
}

func (s *ChatService) resolveTarget(ctx context.Context, ref string) (*agent.Agent, error) {
	ref = strings.TrimSpace(ref)
	if ref != "" {
		ag, err := s.agents.Resolve(ctx, ref)
		if err == nil {
			return ag, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	// Unknown or empty target falls through to the director.
	return s.agents.Director(ctx)
}

func (s *ChatService) fleetStatus(ctx context.Context) (string, error) {
	agents, err := s.agents.List(ctx)
	if err != nil {
		return "", err
	}
	var running, paused, stopped, errored int
	for _, ag := range agents {
		switch ag.Status {
		case agent.StatusRunning:
			running++
		case agent.StatusPaused:
			paused++
		case agent.StatusError:
			errored++
		default:
			stopped++
		}
	}
	return fmt.Sprintf("Fleet: %d agents (%d running, %d paused, %d stopped, %d error).",
		len(agents), running, paused, stopped, errored), nil
}

func (s *ChatService) agentList(ctx context.Context) (string, error) {
	agents, err := s.agents.List(ctx)
	if err != nil {
		return "", err
	}
	if len(agents) == 0 {
		return "No agents registered.", nil
	}
	var b strings.Builder
	for _, ag := range agents {
		fmt.Fprintf(&b, "%s — %s", ag.Name, ag.Status)
		if ag.Director {
			b.WriteString(" (director)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
