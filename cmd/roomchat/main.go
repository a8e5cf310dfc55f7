package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/chatconn"
	"roomchat/internal/config"
	"roomchat/internal/directory"
	"roomchat/internal/models"
	"roomchat/internal/notify"
	"roomchat/internal/restapi"
)

func main() {
	roomFlag := flag.Int64("room", 0, "conversation to open on start")
	peerFlag := flag.Int64("peer", 0, "user to open a conversation with on start")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.LoadClient()
	if cfg.Token == "" {
		log.Fatal("ROOMCHAT_TOKEN is not set")
	}

	self, err := auth.IdentityFromToken(cfg.Token)
	if err != nil {
		log.Fatalf("Bad access token: %v", err)
	}
	log.Printf("Signed in as %s (id %d)", self.Username, self.UserID)

	tokens := auth.StaticToken(cfg.Token)
	api := restapi.NewClient(cfg.APIBaseURL, tokens)
	dir := directory.New(api)
	conns := chatconn.NewManager(chatconn.Config{
		WSBaseURL:  cfg.WSBaseURL,
		Tokens:     tokens,
		RetryDelay: config.ChatRetryDelay,
	})

	session := chat.NewSession(self, conns, api, dir)
	defer session.Close()

	var sink notify.Sink
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tgSink, err := notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("Telegram forwarding disabled: %v", err)
		} else {
			sink = tgSink
		}
	}

	alerts := notify.NewService(notify.Config{
		WSBaseURL:  cfg.WSBaseURL,
		Tokens:     tokens,
		API:        api,
		Sink:       sink,
		RetryDelay: config.NotificationRetryDelay,
	})
	alerts.OnNotification = func(n models.Notification) {
		fmt.Printf("\n🔔 %s: %s\n> ", n.Title, n.Message)
	}

	ctx := context.Background()
	alerts.Connect(ctx)
	defer alerts.Disconnect()

	app := &cli{
		self:    self,
		session: session,
		dir:     dir,
		alerts:  alerts,
	}
	session.OnUpdate = app.render

	if err := dir.Refresh(ctx); err != nil {
		log.Printf("Warning: could not load conversations: %v", err)
	}

	switch {
	case *roomFlag != 0:
		if err := session.OpenConversation(ctx, *roomFlag); err != nil {
			log.Fatalf("Could not open conversation %d: %v", *roomFlag, err)
		}
	case *peerFlag != 0:
		if err := session.OpenWithPeer(ctx, *peerFlag); err != nil {
			log.Fatalf("Could not open chat with user %d: %v", *peerFlag, err)
		}
	default:
		app.printRooms()
		fmt.Println("Open a conversation with /open <room> or /peer <user>.")
	}

	app.loop(ctx)
}

// cli drives the line-oriented prompt.
type cli struct {
	self    auth.Identity
	session *chat.Session
	dir     *directory.Directory
	alerts  *notify.Service
}

func (a *cli) loop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/help":
			a.printHelp()
		case line == "/rooms":
			a.printRooms()
		case line == "/show":
			a.render()
		case line == "/inbox":
			a.printInbox()
		case line == "/read-all":
			a.alerts.MarkAllAsRead()
		case line == "/read":
			a.markLatestRead()
		case strings.HasPrefix(line, "/read "):
			a.withID(line, a.session.MarkRead)
		case strings.HasPrefix(line, "/open "):
			a.withID(line, func(id int64) error { return a.session.OpenConversation(ctx, id) })
		case strings.HasPrefix(line, "/peer "):
			a.withID(line, func(id int64) error { return a.session.OpenWithPeer(ctx, id) })
		case strings.HasPrefix(line, "/delete "):
			a.withID(line, a.session.DeleteMessage)
		case strings.HasPrefix(line, "/edit "):
			a.editCommand(line)
		case strings.HasPrefix(line, "/"):
			fmt.Println("Unknown command; /help lists them.")
		default:
			if err := a.session.SendMessage(line); err != nil {
				fmt.Printf("Not sent: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

func (a *cli) printHelp() {
	fmt.Println(`Commands:
  /rooms             list conversations
  /open <room>       open a conversation
  /peer <user>       open (or start) a chat with a user
  /show              reprint the transcript
  /read [id]         mark a received message (default: latest) as read
  /edit <id> <text>  edit one of your messages
  /delete <id>       delete one of your messages
  /inbox             list notifications
  /read-all          mark all notifications as read
  /quit              exit`)
}

func (a *cli) printRooms() {
	rooms := a.dir.List()
	if len(rooms) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for _, r := range rooms {
		peer, _ := r.Peer(a.self.UserID)
		line := fmt.Sprintf("  [%d] %s", r.ID, peer.DisplayName())
		if r.LastMessage != nil {
			line += " — " + r.LastMessage.Body
		}
		fmt.Println(line)
	}
}

func (a *cli) printInbox() {
	fmt.Printf("%d unread\n", a.alerts.UnreadCount())
	for _, n := range a.alerts.Notifications() {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		fmt.Printf("  %s [%d] %s: %s\n", marker, n.ID, n.Title, n.Message)
	}
}

// render reprints the transcript. Called from the session's event
// goroutine as well as the prompt loop.
func (a *cli) render() {
	conv := a.session.Conversation()
	if conv == nil {
		return
	}
	peer := a.session.Peer()

	fmt.Printf("\n--- %s (room %d, %s) ---\n", peer.DisplayName(), conv.ID, a.session.ConnectionState())
	for _, m := range a.session.Snapshot() {
		name := peer.DisplayName()
		if m.SenderID == a.self.UserID {
			name = "you"
		}
		fmt.Printf("  [%d] %s: %s%s\n", m.ID, name, m.DisplayBody(), statusSuffix(m))
	}
	fmt.Print("> ")
}

func statusSuffix(m models.Message) string {
	var parts []string
	if m.IsEdited && !m.IsDeleted {
		parts = append(parts, "edited")
	}
	switch {
	case m.Pending():
		parts = append(parts, "sending…")
	case m.Status == models.StatusRead:
		parts = append(parts, "read")
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// markLatestRead acknowledges the newest message from the peer.
func (a *cli) markLatestRead() {
	snapshot := a.session.Snapshot()
	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].SenderID != a.self.UserID {
			if err := a.session.MarkRead(snapshot[i].ID); err != nil {
				fmt.Printf("Failed: %v\n", err)
			}
			return
		}
	}
	fmt.Println("Nothing to mark.")
}

func (a *cli) withID(line string, fn func(int64) error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		fmt.Println("An id is required.")
		return
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("Bad id.")
		return
	}
	if err := fn(id); err != nil {
		fmt.Printf("Failed: %v\n", err)
	}
}

func (a *cli) editCommand(line string) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		fmt.Println("Usage: /edit <id> <new text>")
		return
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("Bad id.")
		return
	}
	if err := a.session.EditMessage(id, fields[2]); err != nil {
		fmt.Printf("Failed: %v\n", err)
	}
}
