package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-relay/client"
	"chat-relay/domain"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddr  string        `env:"CHAT_SERVER_ADDR,default=http://localhost:3001"`
	Token       string        `env:"CHAT_TOKEN,required=true"`
	LogLevel    string        `env:"LOG_LEVEL,default=INFO"`
	BackoffBase time.Duration `env:"BACKOFF_BASE,default=1s"`
	BackoffCap  time.Duration `env:"BACKOFF_CAP,default=30s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS,default=8"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	wsURL, err := websocketURL(config.ServerAddr, config.Token)
	if err != nil {
		return exitConfig, err
	}

	// 2. Load the conversation list and recent room history over REST.
	rest := client.NewREST(config.ServerAddr, config.Token)
	if conversations, err := rest.Conversations(); err != nil {
		log.Warn("Could not fetch conversations", "error", err)
	} else if len(conversations) > 0 {
		printConversations(conversations)
	}
	if history, err := rest.PublicHistory(); err != nil {
		log.Warn("Could not fetch history", "error", err)
	} else {
		for _, msg := range history {
			render(msg)
		}
	}

	// 3. Connect and supervise the websocket.
	supervisor := client.NewSupervisor(client.Config{
		URL:         wsURL,
		BackoffBase: config.BackoffBase,
		BackoffCap:  config.BackoffCap,
		MaxAttempts: config.MaxAttempts,
	}, log)
	supervisor.OnMessage(render)
	supervisor.OnStateChange(func(state client.State, attempt int) {
		switch state {
		case client.StateReconnectScheduled:
			fmt.Printf("-- RECONNECTING (%d/%d)\n", attempt, config.MaxAttempts)
		default:
			fmt.Printf("-- %s\n", state)
		}
	})
	supervisor.Connect()
	defer supervisor.Disconnect()

	// 4. Read stdin lines and send them; Ctrl+C tears everything down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigChan:
			return exitOK, nil
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return exitOK, nil
			}
			if err := send(supervisor, line); err != nil {
				log.Warn("Send failed", "error", err)
			}
		}
	}
}

// send parses a stdin line: "/dm <conversationId> <text>" goes private,
// anything else goes to the public room.
func send(supervisor *client.Supervisor, line string) error {
	message := domain.InboundMessage{
		Content:     line,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		MessageType: string(domain.ScopePublic),
	}
	if rest, ok := strings.CutPrefix(line, "/dm "); ok {
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("usage: /dm <conversationId> <text>")
		}
		message.ConversationID = parts[0]
		message.Content = parts[1]
		message.MessageType = string(domain.ScopePrivate)
	}
	return supervisor.Send(message)
}

func render(msg domain.OutboundMessage) {
	line := fmt.Sprintf("[%s] %s: %s",
		msg.Timestamp.Local().Format("15:04:05"), msg.Sender, msg.Content)
	if msg.ImageURL != "" {
		line += fmt.Sprintf(" (image: %s)", msg.ImageURL)
	}
	if msg.Color != "" {
		color.HEX(msg.Color).Println(line)
		return
	}
	fmt.Println(line)
}

func printConversations(conversations []client.Conversation) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Conversation", "Participants", "Last activity"})
	for _, c := range conversations {
		lastActivity := "-"
		if c.LastMessageAt != nil {
			lastActivity = c.LastMessageAt.Local().Format(time.RFC822)
		}
		table.Append([]string{c.ID, strings.Join(c.Participants, ", "), lastActivity})
	}
	table.Render()
}

func websocketURL(serverAddr, token string) (string, error) {
	parsed, err := url.Parse(serverAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = "/ws"
	parsed.RawQuery = url.Values{"token": {token}}.Encode()
	return parsed.String(), nil
}
