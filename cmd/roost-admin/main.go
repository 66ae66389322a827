// ABOUTME: Admin CLI for the roostd daemon
// ABOUTME: Inspects agents, delegation history, and remembered permission patterns

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                          _                 _           _
  _ __ ___   ___  ___ ___| |_      __ _  __| |_ __ ___ (_)_ __
 | '__/ _ \ / _ \/ __|  _| _ | _ / _' |/ _' | '_ ' _ \| | '_ \
 | | | (_) | (_) \__ \ |_ |_| |_| (_| | (_| | | | | | | | | | |
 |_|  \___/ \___/|___/\__|___/   \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := os.Getenv("ROOST_ADDR")
	if addr == "" {
		addr = "127.0.0.1:7433"
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(addr)
	case "history":
		err = cmdHistory(addr, args)
	case "patterns":
		err = cmdPatterns(addr)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: roost-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status              Show all agents and their current state")
	fmt.Println("  history <boss-id>   Show a boss's delegation decision log")
	fmt.Println("  patterns            List remembered permission patterns")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  ROOST_ADDR          Daemon HTTP address (default: 127.0.0.1:7433)")
	fmt.Println()
}

func getJSON(addr, path string, dst any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s%s", addr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

type agentView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Class       string `json:"class"`
	Status      string `json:"status"`
	CurrentTask string `json:"currentTask"`
	BossID      string `json:"bossId"`
	TaskCount   int    `json:"taskCount"`
	ContextUsed int    `json:"contextUsed"`
	ContextLim  int    `json:"contextLimit"`
}

func cmdStatus(addr string) error {
	var agents []agentView
	if err := getJSON(addr, "/api/agents", &agents); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(agents) == 0 {
		fmt.Println("  (none)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tCLASS\tSTATUS\tTASKS\tCONTEXT\tCURRENT TASK")
	for _, a := range agents {
		ctx := "-"
		if a.ContextLim > 0 {
			ctx = fmt.Sprintf("%d%%", a.ContextUsed*100/a.ContextLim)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(a.ID), a.Name, a.Class, colorStatus(a.Status), a.TaskCount, ctx, a.CurrentTask)
	}
	return w.Flush()
}

type decisionView struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UserCommand  string    `json:"userCommand"`
	SelectedName string    `json:"selectedAgentName"`
	Reasoning    string    `json:"reasoning"`
	Confidence   string    `json:"confidence"`
	Status       string    `json:"status"`
}

func cmdHistory(addr string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: roost-admin history <boss-id>")
	}

	var decisions []decisionView
	if err := getJSON(addr, "/api/delegations?boss="+args[0], &decisions); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Delegation History")
	cyan.Println("  ------------------")

	if len(decisions) == 0 {
		fmt.Println("  (none)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  WHEN\tCOMMAND\tSELECTED\tCONFIDENCE\tREASONING")
	for _, d := range decisions {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			d.Timestamp.Format("01-02 15:04"),
			clip(d.UserCommand, 40),
			d.SelectedName,
			d.Confidence,
			clip(d.Reasoning, 50))
	}
	return w.Flush()
}

type patternView struct {
	Tool        string    `json:"tool"`
	Pattern     string    `json:"pattern"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func cmdPatterns(addr string) error {
	var patterns []patternView
	if err := getJSON(addr, "/api/patterns", &patterns); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Remembered Patterns")
	cyan.Println("  -------------------")

	if len(patterns) == 0 {
		fmt.Println("  (none)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  TOOL\tPATTERN\tCREATED\tDESCRIPTION")
	for _, p := range patterns {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			p.Tool, p.Pattern, p.CreatedAt.Format("2006-01-02"), p.Description)
	}
	return w.Flush()
}

func colorStatus(status string) string {
	switch status {
	case "working":
		return color.GreenString(status)
	case "waiting_permission":
		return color.YellowString(status)
	case "error", "orphaned":
		return color.RedString(status)
	default:
		return status
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
