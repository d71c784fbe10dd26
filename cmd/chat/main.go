package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Gatehouse server URL")
	agentID := flag.String("agent", "", "Agent ID to chat with")
	actor := flag.String("actor", "cli-operator", "Actor name recorded on approval decisions")
	flag.Parse()

	fmt.Println("Gatehouse CLI")
	fmt.Printf("Server: %s | Actor: %s\n", *server, *actor)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /agents, /approvals, /approve <id> [note], /reject <id> <reason>, /capabilities")
	fmt.Println("---")

	if *agentID == "" {
		fetchAgents(*server)
		fmt.Println("Pick one with -agent <id>, or /agents to list again.")
	}

	var sessionID string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		switch {
		case input == "/agents":
			fetchAgents(*server)
			continue
		case input == "/approvals":
			fetchApprovals(*server)
			continue
		case input == "/capabilities":
			fetchCapabilities(*server, sessionID)
			continue
		case strings.HasPrefix(input, "/approve "):
			resolve(*server, *actor, "approve", strings.TrimPrefix(input, "/approve "))
			continue
		case strings.HasPrefix(input, "/reject "):
			resolve(*server, *actor, "reject", strings.TrimPrefix(input, "/reject "))
			continue
		}

		if *agentID == "" {
			printError("No agent selected. Restart with -agent <id>.")
			continue
		}
		sessionID = sendMessage(*server, *agentID, sessionID, input)
	}
}

func fetchAgents(server string) {
	resp, err := http.Get(server + "/api/agents")
	if err != nil {
		printError("Failed to fetch agents: %v", err)
		return
	}
	defer resp.Body.Close()

	var agents []struct {
		Persona struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"persona"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		printError("Failed to parse agents: %v", err)
		return
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered yet.")
		return
	}
	fmt.Println("Available agents:")
	for _, a := range agents {
		fmt.Printf("  %s  %s (%s) [%s]\n", a.Persona.ID, a.Persona.Name, a.Persona.Role, a.Status)
	}
}

func fetchApprovals(server string) {
	resp, err := http.Get(server + "/api/approvals")
	if err != nil {
		printError("Failed to fetch approvals: %v", err)
		return
	}
	defer resp.Body.Close()

	var pending []struct {
		ID        string `json:"id"`
		ToolName  string `json:"tool_name"`
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		printError("Failed to parse approvals: %v", err)
		return
	}
	if len(pending) == 0 {
		fmt.Println("No pending approvals.")
		return
	}
	fmt.Println("Pending approvals:")
	for _, p := range pending {
		line := fmt.Sprintf("  %s  %s (session %s): %s", p.ID, p.ToolName, p.SessionID, p.Message)
		if p.ExpiresAt != nil {
			line += fmt.Sprintf(" [expires %s]", p.ExpiresAt.Format(time.Kitchen))
		}
		fmt.Println(line)
	}
}

func fetchCapabilities(server, sessionID string) {
	if sessionID == "" {
		fmt.Println("No active session yet. Send a message first.")
		return
	}
	resp, err := http.Get(server + "/api/sessions/" + sessionID + "/capabilities")
	if err != nil {
		printError("Failed to fetch capabilities: %v", err)
		return
	}
	defer resp.Body.Close()

	var state struct {
		State struct {
			Loaded []string `json:"loaded"`
		} `json:"state"`
		UnlockedTools []string `json:"unlocked_tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		printError("Failed to parse capabilities: %v", err)
		return
	}
	if len(state.State.Loaded) == 0 {
		fmt.Println("No capabilities loaded in this session.")
		return
	}
	fmt.Printf("Loaded: %s\n", strings.Join(state.State.Loaded, ", "))
	fmt.Printf("Unlocked tools: %s\n", strings.Join(state.UnlockedTools, ", "))
}

// resolve posts an approval decision. args is "<id>" for approve or
// "<id> <reason>" for reject.
func resolve(server, actor, decision, args string) {
	id, reason, _ := strings.Cut(strings.TrimSpace(args), " ")
	if id == "" {
		printError("Usage: /%s <id> [reason]", decision)
		return
	}

	body, _ := json.Marshal(map[string]string{
		"decision": decision,
		"actor":    actor,
		"reason":   strings.TrimSpace(reason),
	})
	resp, err := http.Post(
		server+"/api/approvals/"+id+"/resolve",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}
	fmt.Printf("%sd %s\n", decision, id)
}

// sendMessage posts one chat turn and returns the session ID to reuse on
// the next turn. The call blocks while an approval is pending, so resolve
// those from a second terminal.
func sendMessage(server, agentID, sessionID, content string) string {
	body, _ := json.Marshal(map[string]string{
		"message":    content,
		"session_id": sessionID,
	})

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Post(
		server+"/api/agents/"+agentID+"/chat",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return sessionID
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return sessionID
	}

	var result struct {
		SessionID string `json:"session_id"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		printError("Failed to parse response: %v", err)
		return sessionID
	}

	fmt.Printf("\033[36m[%s]\033[0m %s\n", agentID, result.Content)
	return result.SessionID
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
