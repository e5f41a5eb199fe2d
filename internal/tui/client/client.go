package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/driftpro/internal/api"
	"github.com/matheus3301/driftpro/internal/chat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a remote chat.MessageStore and chat.TypingStore served by the
// daemon over its Unix domain socket.
type Client struct {
	conn *grpc.ClientConn
}

var (
	_ chat.MessageStore = (*Client)(nil)
	_ chat.TypingStore  = (*Client)(nil)
)

// Status describes the daemon a client is connected to.
type Status struct {
	Profile     string
	Presence    string
	StartedAtMs int64
	Subscribers int
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args map[string]any, out proto.Message) error {
	in, err := structpb.NewStruct(args)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return api.FromStatus(err)
	}
	return nil
}

func (c *Client) listMessages(ctx context.Context, method string, args map[string]any) ([]chat.Message, error) {
	out := new(structpb.ListValue)
	if err := c.call(ctx, method, args, out); err != nil {
		return nil, err
	}
	return api.MessagesFromList(out), nil
}

// ListMessages implements chat.MessageStore.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	return c.listMessages(ctx, api.MethodListMessages, map[string]any{"chatId": chatID})
}

// MessagesNotFrom implements chat.MessageStore.
func (c *Client) MessagesNotFrom(ctx context.Context, chatID, userID string) ([]chat.Message, error) {
	return c.listMessages(ctx, api.MethodMessagesNotFrom, map[string]any{"chatId": chatID, "userId": userID})
}

// SearchMessages finds messages containing query; an empty chatID searches
// every chat.
func (c *Client) SearchMessages(ctx context.Context, query, chatID string, limit int) ([]chat.Message, error) {
	return c.listMessages(ctx, api.MethodSearchMessages, map[string]any{"query": query, "chatId": chatID, "limit": limit})
}

// AddMessage implements chat.MessageStore.
func (c *Client) AddMessage(ctx context.Context, m chat.Message) (string, error) {
	doc := m.ToDocument()
	out := new(wrapperspb.StringValue)
	if err := c.call(ctx, api.MethodAddMessage, map[string]any{"message": map[string]any(doc)}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// UpdateSummary implements chat.MessageStore.
func (c *Client) UpdateSummary(ctx context.Context, chatID string, s chat.Summary) error {
	return c.call(ctx, api.MethodUpdateSummary, map[string]any{
		"chatId":  chatID,
		"summary": map[string]any(s.ToDocument()),
	}, new(emptypb.Empty))
}

// AddReader implements chat.MessageStore.
func (c *Client) AddReader(ctx context.Context, chatID, messageID, userID string) error {
	return c.call(ctx, api.MethodAddReader, map[string]any{
		"chatId": chatID, "messageId": messageID, "userId": userID,
	}, new(emptypb.Empty))
}

// AdvanceStatus implements chat.MessageStore.
func (c *Client) AdvanceStatus(ctx context.Context, chatID, messageID string, to chat.Status) error {
	return c.call(ctx, api.MethodAdvanceStatus, map[string]any{
		"chatId": chatID, "messageId": messageID, "status": string(to),
	}, new(emptypb.Empty))
}

// DeleteMessage implements chat.MessageStore.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return c.call(ctx, api.MethodDeleteMessage, map[string]any{
		"chatId": chatID, "messageId": messageID,
	}, new(emptypb.Empty))
}

// CreateChat implements chat.MessageStore.
func (c *Client) CreateChat(ctx context.Context, ch chat.Chat) (string, error) {
	doc := ch.ToDocument()
	doc["id"] = ch.ID
	out := new(wrapperspb.StringValue)
	if err := c.call(ctx, api.MethodCreateChat, map[string]any{"chat": map[string]any(doc)}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// ListChats implements chat.MessageStore.
func (c *Client) ListChats(ctx context.Context, companyID string) ([]chat.Chat, error) {
	out := new(structpb.ListValue)
	if err := c.call(ctx, api.MethodListChats, map[string]any{"companyId": companyID}, out); err != nil {
		return nil, err
	}
	return api.ChatsFromList(out), nil
}

// GetChat returns one chat.
func (c *Client) GetChat(ctx context.Context, chatID string) (chat.Chat, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, api.MethodGetChat, map[string]any{"chatId": chatID}, out); err != nil {
		return chat.Chat{}, err
	}
	return api.ChatFromStruct(out), nil
}

// SetTyping implements chat.TypingStore.
func (c *Client) SetTyping(ctx context.Context, chatID, userID string, typing bool) error {
	return c.call(ctx, api.MethodSetTyping, map[string]any{
		"chatId": chatID, "userId": userID, "isTyping": typing,
	}, new(emptypb.Empty))
}

// Status reports daemon information.
func (c *Client) Status(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, api.MethodStatus, map[string]any{}, out); err != nil {
		return Status{}, err
	}
	f := out.GetFields()
	return Status{
		Profile:     f["profile"].GetStringValue(),
		Presence:    f["presence"].GetStringValue(),
		StartedAtMs: int64(f["startedAt"].GetNumberValue()),
		Subscribers: int(f["subscribers"].GetNumberValue()),
	}, nil
}

// WatchMessages implements chat.MessageStore over a server stream.
func (c *Client) WatchMessages(ctx context.Context, chatID string) (<-chan chat.MessageSnapshot, error) {
	stream, err := c.openStream(ctx, api.StreamWatchMessages, chatID)
	if err != nil {
		return nil, err
	}
	out := make(chan chat.MessageSnapshot, 1)
	go pump(ctx, stream, out, func(l *structpb.ListValue, err error) chat.MessageSnapshot {
		if err != nil {
			return chat.MessageSnapshot{Err: err}
		}
		return chat.MessageSnapshot{Messages: api.MessagesFromList(l)}
	})
	return out, nil
}

// WatchTyping implements chat.TypingStore over a server stream.
func (c *Client) WatchTyping(ctx context.Context, chatID string) (<-chan chat.TypingSnapshot, error) {
	stream, err := c.openStream(ctx, api.StreamWatchTyping, chatID)
	if err != nil {
		return nil, err
	}
	out := make(chan chat.TypingSnapshot, 1)
	go pump(ctx, stream, out, func(l *structpb.ListValue, err error) chat.TypingSnapshot {
		if err != nil {
			return chat.TypingSnapshot{Err: err}
		}
		return chat.TypingSnapshot{States: api.TypingFromList(l)}
	})
	return out, nil
}

func (c *Client) openStream(ctx context.Context, name, chatID string) (grpc.ClientStream, error) {
	in, err := structpb.NewStruct(map[string]any{"chatId": chatID})
	if err != nil {
		return nil, err
	}
	stream, err := c.conn.NewStream(ctx, api.StreamDesc(name), api.FullMethod(name))
	if err != nil {
		return nil, api.FromStatus(err)
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, api.FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, api.FromStatus(err)
	}
	return stream, nil
}

// errStreamEnded is reported when the daemon ends a feed the caller still
// wants, e.g. on daemon shutdown.
var errStreamEnded = errors.New("daemon ended the feed")

// pump forwards stream frames to out until the stream fails or ctx ends. A
// failure is delivered as a final snapshot unless ctx was cancelled.
func pump[T any](ctx context.Context, stream grpc.ClientStream, out chan<- T, wrap func(*structpb.ListValue, error) T) {
	defer close(out)
	for {
		frame := new(structpb.ListValue)
		err := stream.RecvMsg(frame)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			err = errStreamEnded
		}
		if err != nil {
			select {
			case out <- wrap(nil, api.FromStatus(err)):
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- wrap(frame, nil):
		case <-ctx.Done():
			return
		}
	}
}
