package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/amora-chat/amora/internal/platform"
	"github.com/amora-chat/amora/internal/profile"
	"github.com/amora-chat/amora/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Login writes the token file directly; no running daemon required.
	if args[0] == "login" {
		cmdLogin(profileName, args[1:])
		return
	}

	c := client.New(profile.SocketPath(profileName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, profileName, *jsonFlag)
	case "conversations":
		cmdConversations(ctx, c, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: amoractl send <username> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], args[2])
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: amoractl search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, c, args[1], *jsonFlag)
	case "resolve":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: amoractl resolve <username>")
			os.Exit(1)
		}
		cmdResolve(ctx, c, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: amoractl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  conversations          List conversations")
	fmt.Fprintln(os.Stderr, "  send <user> <text>     Send a message")
	fmt.Fprintln(os.Stderr, "  search <query>         Search cached messages")
	fmt.Fprintln(os.Stderr, "  resolve <user>         Find or create a conversation")
	fmt.Fprintln(os.Stderr, "  login [token]          Store a session token (reads stdin if omitted)")
}

func cmdStatus(ctx context.Context, c *client.Client, profileName string, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile: %s\n", st.Profile)
	fmt.Printf("State:   %s\n", st.State)
}

func cmdConversations(ctx context.Context, c *client.Client, jsonOut bool) {
	convs, err := c.Conversations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range convs {
		name := conv.Name
		if name == "" {
			name = conv.Username
		}
		marker := " "
		if conv.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s\n", marker, name, conv.LastMessage)
	}
}

func cmdSend(ctx context.Context, c *client.Client, username, text string) {
	conv, err := c.Resolve(ctx, "", "", username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := c.Select(ctx, conv.DisplayID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := c.Send(ctx, text); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Sent.")
}

func cmdSearch(ctx context.Context, c *client.Client, query string, jsonOut bool) {
	results, err := c.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, r := range results {
		fmt.Printf("%-38s %s\n", r.ConversationID, r.Snippet)
	}
}

func cmdResolve(ctx context.Context, c *client.Client, username string, jsonOut bool) {
	conv, err := c.Resolve(ctx, "", "", username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(conv)
		return
	}
	fmt.Printf("Display ID:      %s\n", conv.DisplayID)
	fmt.Printf("Conversation ID: %s\n", conv.ConversationID)
	fmt.Printf("Counterpart:     %s\n", conv.CounterpartID)
}

func cmdLogin(profileName string, args []string) {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Paste token: ")
		if _, err := fmt.Scanln(&token); err != nil {
			fmt.Fprintf(os.Stderr, "error: read token: %v\n", err)
			os.Exit(1)
		}
	}

	if platform.TokenExpired(token, time.Now()) {
		fmt.Fprintln(os.Stderr, "error: token is expired or malformed")
		os.Exit(1)
	}

	if err := profile.EnsureDir(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := platform.SaveToken(profile.TokenPath(profileName), token); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if expiry, err := platform.TokenExpiry(token); err == nil {
		fmt.Printf("Token stored. Expires %s.\n", expiry.Format(time.RFC3339))
	} else {
		fmt.Println("Token stored.")
	}
	fmt.Println("Restart the daemon to pick it up.")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
