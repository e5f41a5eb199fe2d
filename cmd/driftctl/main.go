package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/config"
	"github.com/matheus3301/driftpro/internal/profile"
	"github.com/matheus3301/driftpro/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfgPath := profile.ConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fail(err)
	}

	// init only touches the config file and needs no daemon.
	if args[0] == "init" {
		cmdInit(cfgPath, cfg, args[1:])
		return
	}

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fail(err)
	}

	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cli := &ctl{client: c, cfg: cfg, json: *jsonFlag}
	switch args[0] {
	case "status":
		cli.status(ctx)
	case "chats":
		cli.chats(ctx)
	case "create-chat":
		cli.createChat(ctx, args[1:])
	case "history":
		needArgs(args, 2, "history <chat-id>")
		cli.history(ctx, args[1])
	case "send":
		cli.send(ctx, args[1:])
	case "read":
		needArgs(args, 2, "read <chat-id>")
		cli.read(ctx, args[1])
	case "delete":
		needArgs(args, 3, "delete <chat-id> <message-id>")
		cli.delete(ctx, args[1], args[2])
	case "forward":
		needArgs(args, 4, "forward <chat-id> <message-id> <target-chat-id>")
		cli.forward(ctx, args[1], args[2], args[3])
	case "search":
		cli.search(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: driftctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init <user-id> <display-name> [company-id]   Save the signed-in identity")
	fmt.Fprintln(os.Stderr, "  status                                        Show daemon status")
	fmt.Fprintln(os.Stderr, "  chats                                         List the company's chats")
	fmt.Fprintln(os.Stderr, "  create-chat <name> [participant...]           Create a chat")
	fmt.Fprintln(os.Stderr, "  history <chat-id>                             Print a chat's messages")
	fmt.Fprintln(os.Stderr, "  send [--reply <msg-id>] <chat-id> <text>      Send a text message")
	fmt.Fprintln(os.Stderr, "  read <chat-id>                                Mark a chat as read")
	fmt.Fprintln(os.Stderr, "  delete <chat-id> <msg-id>                     Delete a message")
	fmt.Fprintln(os.Stderr, "  forward <chat-id> <msg-id> <target-chat-id>   Forward a message")
	fmt.Fprintln(os.Stderr, "  search [--chat <chat-id>] <query>             Search message text")
}

type ctl struct {
	client *client.Client
	cfg    *config.Config
	json   bool
}

func (c *ctl) user() chat.User {
	u := chat.User{ID: c.cfg.User.ID, DisplayName: c.cfg.User.DisplayName, CompanyID: c.cfg.User.CompanyID}
	if u.ID == "" {
		fail(errors.New("no user configured; run: driftctl init <user-id> <display-name>"))
	}
	return u
}

// session builds a controller for chatID that reports through the terminal.
func (c *ctl) session(chatID string) *chat.Session {
	s, err := chat.NewSession(
		chat.Config{ChatID: chatID, TypingQuiet: c.cfg.Chat.TypingQuiet()},
		chat.Deps{Messages: c.client, Typing: c.client, User: c.user(), View: printView{}},
	)
	if err != nil {
		fail(err)
	}
	return s
}

func cmdInit(path string, cfg *config.Config, args []string) {
	if len(args) < 2 {
		fail(errors.New("usage: driftctl init <user-id> <display-name> [company-id]"))
	}
	cfg.User.ID = args[0]
	cfg.User.DisplayName = args[1]
	if len(args) > 2 {
		cfg.User.CompanyID = args[2]
	}
	if err := config.Save(path, cfg); err != nil {
		fail(err)
	}
	fmt.Printf("Saved identity %s (%s) to %s\n", cfg.User.ID, cfg.User.DisplayName, path)
}

func (c *ctl) status(ctx context.Context) {
	st, err := c.client.Status(ctx)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile:     %s\n", st.Profile)
	fmt.Printf("Presence:    %s\n", st.Presence)
	fmt.Printf("Uptime:      %s\n", time.Since(time.UnixMilli(st.StartedAtMs)).Round(time.Second))
	fmt.Printf("Live feeds:  %d\n", st.Subscribers)
}

func (c *ctl) chats(ctx context.Context) {
	chats, err := c.client.ListChats(ctx, c.cfg.User.CompanyID)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats found.")
		return
	}
	for _, ch := range chats {
		last := ""
		if ch.Summary.LastMessage != "" {
			last = fmt.Sprintf("%s: %s", ch.Summary.LastMessageSender, ch.Summary.LastMessage)
		}
		fmt.Printf("%-36s %-20s %s\n", ch.ID, ch.Name, last)
	}
}

func (c *ctl) createChat(ctx context.Context, args []string) {
	if len(args) < 1 {
		fail(errors.New("usage: driftctl create-chat <name> [participant...]"))
	}
	participants := args[1:]
	if u := c.cfg.User.ID; u != "" && !contains(participants, u) {
		participants = append([]string{u}, participants...)
	}
	id, err := c.client.CreateChat(ctx, chat.Chat{
		CompanyID:    c.cfg.User.CompanyID,
		Name:         args[0],
		Participants: participants,
	})
	if err != nil {
		fail(err)
	}
	fmt.Println(id)
}

func (c *ctl) history(ctx context.Context, chatID string) {
	msgs, err := c.client.ListMessages(ctx, chatID)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		fmt.Println(formatMessage(m))
	}
}

func (c *ctl) send(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	replyTo := fs.String("reply", "", "message id to reply to")
	_ = fs.Parse(args)
	if fs.NArg() < 2 {
		fail(errors.New("usage: driftctl send [--reply <msg-id>] <chat-id> <text>"))
	}
	chatID := fs.Arg(0)
	s := c.session(chatID)
	defer s.Close()

	if *replyTo != "" {
		target, err := c.find(ctx, chatID, *replyTo)
		if err != nil {
			fail(err)
		}
		s.RequestReply(target)
	}
	m, err := s.Send(ctx, strings.Join(fs.Args()[1:], " "))
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(m)
		return
	}
	fmt.Println(m.ID)
}

func (c *ctl) read(ctx context.Context, chatID string) {
	if err := chat.MarkRead(ctx, c.client, chatID, c.user().ID); err != nil {
		fail(err)
	}
	fmt.Println("Marked as read.")
}

func (c *ctl) delete(ctx context.Context, chatID, msgID string) {
	if err := c.client.DeleteMessage(ctx, chatID, msgID); err != nil {
		fail(err)
	}
	fmt.Println("Deleted.")
}

func (c *ctl) forward(ctx context.Context, chatID, msgID, target string) {
	m, err := c.find(ctx, chatID, msgID)
	if err != nil {
		fail(err)
	}
	s := c.session(chatID)
	defer s.Close()
	fwd, err := s.Forward(ctx, m, target)
	if err != nil {
		fail(err)
	}
	fmt.Println(fwd.ID)
}

func (c *ctl) search(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	chatID := fs.String("chat", "", "limit to one chat")
	limit := fs.Int("limit", 20, "maximum results")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fail(errors.New("usage: driftctl search [--chat <chat-id>] <query>"))
	}
	msgs, err := c.client.SearchMessages(ctx, strings.Join(fs.Args(), " "), *chatID, *limit)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s\n", m.ChatID, formatMessage(m))
	}
}

func (c *ctl) find(ctx context.Context, chatID, msgID string) (chat.Message, error) {
	msgs, err := c.client.ListMessages(ctx, chatID)
	if err != nil {
		return chat.Message{}, err
	}
	for _, m := range msgs {
		if m.ID == msgID {
			return m, nil
		}
	}
	return chat.Message{}, fmt.Errorf("message %s: %w", msgID, chat.ErrNotFound)
}

func formatMessage(m chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s: %s", m.CreatedAt.Format("2006-01-02 15:04"), m.ID, m.SenderName, m.Text)
	if m.ReplyToMessageID != "" {
		fmt.Fprintf(&b, "  (reply to %s)", m.ReplyToMessageID)
	}
	if m.ForwardedFromName != "" {
		fmt.Fprintf(&b, "  (forwarded from %s)", m.ForwardedFromName)
	}
	fmt.Fprintf(&b, "  [%s, read by %d]", m.Status, len(m.ReadBy))
	return b.String()
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func needArgs(args []string, n int, usage string) {
	if len(args) < n {
		fail(fmt.Errorf("usage: driftctl %s", usage))
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

// printView reports session effects on the terminal.
type printView struct{}

func (printView) RenderMessages([]chat.Message, int) {}
func (printView) SetTypingIndicator(bool, string)    {}
func (printView) ShowReplyPreview(text string)       { fmt.Fprintln(os.Stderr, text) }
func (printView) HideReplyPreview()                  {}
func (printView) ClearCompose()                      {}
func (printView) Notify(text string)                 { fmt.Fprintln(os.Stderr, text) }
func (printView) SetSyncLost(bool)                   {}
func (printView) Confirm(_ string, onConfirm func()) { onConfirm() }
