package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"roomsync/internal/app"
	"roomsync/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to JSON configuration file")
	sessionID := flag.String("session", "", "session to join")
	token := flag.String("token", "", "access token (overrides config)")
	flag.Parse()

	if *sessionID == "" {
		return fmt.Errorf("a session id is required (-session)")
	}

	cfg := config.LoadConfigWithPrecedence(*configPath)
	if *token != "" {
		cfg.Auth.AccessToken = *token
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(cfg, *sessionID, func() {
		fmt.Println("Session is no longer available, leaving.")
		cancel()
	})
	if err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		application.Stop()
		return err
	}
	defer application.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go readLines(lines)

	fmt.Printf("Joined session %s as %s. Type a message, or /help for commands.\n",
		*sessionID, application.Identity().Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			log.Printf("[Main] Received %v, shutting down", sig)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, application, line); done {
				return nil
			}
		}
	}
}

func readLines(out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

// handleLine executes one console line: a /command or a chat send.
// It returns true when the user asked to exit.
func handleLine(ctx context.Context, application *app.Application, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		application.Chat().SetDraft(line)
		if err := application.Chat().Send(ctx); err != nil {
			fmt.Printf("Send failed: %v\n", err)
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		printHelp()
	case "/participants":
		for _, p := range application.Room().Participants() {
			marker := ""
			if !p.IsActive {
				marker = " (inactive)"
			}
			fmt.Printf("  %s [%s]%s\n", p.User.Name, p.Role, marker)
		}
	case "/chat":
		for _, group := range application.Chat().Groups() {
			fmt.Printf("-- %s --\n", group.Label)
			for _, entry := range group.Entries {
				if entry.ShowHeader && entry.Message.User.Name != "" {
					fmt.Printf("%s:\n", entry.Message.User.Name)
				}
				fmt.Printf("  %s\n", entry.Message.Content)
			}
		}
	case "/board":
		for _, el := range application.Whiteboard().Elements() {
			state := ""
			if !el.Confirmed {
				state = " (unconfirmed)"
			}
			fmt.Printf("  (%.0f,%.0f) %q%s\n", el.X, el.Y, el.Text, state)
		}
	case "/write":
		if len(fields) < 4 {
			fmt.Println("usage: /write <x> <y> <text>")
			return false
		}
		writeElement(application, fields[1], fields[2], strings.Join(fields[3:], " "))
	case "/clear":
		application.Whiteboard().ClearAll()
	case "/translate":
		if len(fields) < 3 {
			fmt.Println("usage: /translate <message-index> <language>")
			return false
		}
		translateMessage(ctx, application, fields[1], fields[2])
	case "/improve":
		if len(fields) < 2 {
			fmt.Println("usage: /improve <draft text>")
			return false
		}
		improveDraft(ctx, application, strings.Join(fields[1:], " "))
	case "/reconnect":
		application.Channel().Reconnect()
	case "/end":
		if err := application.Room().End(ctx); err != nil {
			fmt.Printf("End failed: %v\n", err)
		}
	case "/leave", "/quit":
		if err := application.Room().Leave(ctx); err != nil {
			fmt.Printf("Leave failed: %v\n", err)
		}
		return true
	default:
		fmt.Printf("Unknown command %s\n", fields[0])
	}
	return false
}

func writeElement(application *app.Application, xs, ys, text string) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		fmt.Printf("Bad x coordinate: %v\n", err)
		return
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		fmt.Printf("Bad y coordinate: %v\n", err)
		return
	}

	wb := application.Whiteboard()
	el := wb.HandleClick(x, y)
	if err := wb.UpdateDraft(el.ID, text); err != nil {
		fmt.Printf("Edit failed: %v\n", err)
		return
	}
	if _, err := wb.CommitEdit(el.ID); err != nil {
		fmt.Printf("Commit failed: %v\n", err)
	}
}

func translateMessage(ctx context.Context, application *app.Application, index, language string) {
	i, err := strconv.Atoi(index)
	messages := application.Chat().Messages()
	if err != nil || i < 0 || i >= len(messages) {
		fmt.Println("No such message")
		return
	}
	translated, err := application.Translator().TranslateMessage(ctx, messages[i], language)
	if err != nil {
		fmt.Printf("Translation failed: %v\n", err)
		return
	}
	fmt.Printf("  %s\n", translated)
}

func improveDraft(ctx context.Context, application *app.Application, draft string) {
	improvement, err := application.Translator().ImproveDraft(ctx, draft)
	if err != nil {
		fmt.Printf("Improve failed: %v\n", err)
		return
	}
	if improvement.UpgradeRequired {
		fmt.Printf("Plan limit reached (%d/%d), upgrade to keep improving messages.\n",
			improvement.UsedCount, improvement.Limit)
		return
	}
	fmt.Printf("  %s\n", improvement.ImprovedText)
}

func printHelp() {
	fmt.Println(`Commands:
  <text>                      send a chat message
  /participants               list session participants
  /chat                       show chat history grouped by day
  /board                      show whiteboard elements
  /write <x> <y> <text>       place text on the whiteboard
  /clear                      clear the whiteboard
  /translate <index> <lang>   translate a chat message
  /improve <draft>            improve a draft before sending
  /reconnect                  force a channel reconnect
  /end                        end the session (creator only)
  /leave                      leave the session and exit`)
}
