package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/driftpro/internal/chat"
	"github.com/matheus3301/driftpro/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Info describes the serving daemon for the Status call.
type Info struct {
	Profile  string
	Presence string // "sqlite" or "redis"
	Started  time.Time
}

// Service implements the ChatStore gRPC service on top of the SQLite store
// and a typing store.
type Service struct {
	db     *store.DB
	typing chat.TypingStore
	info   Info
	logger *zap.Logger

	stopping chan struct{}
	stopOnce sync.Once
}

// NewService creates a ChatStore service. A nil typing store serves typing
// flags from db.
func NewService(db *store.DB, typing chat.TypingStore, info Info, logger *zap.Logger) *Service {
	if typing == nil {
		typing = db
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, typing: typing, info: info, logger: logger, stopping: make(chan struct{})}
}

// Shutdown ends every open watch stream so a graceful server stop does not
// wait on them.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

// watchContext is the stream's context, also cancelled by Shutdown.
func (s *Service) watchContext(stream grpc.ServerStream) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(stream.Context())
	go func() {
		select {
		case <-s.stopping:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Service) fail(op string, err error) error {
	st := toStatus(op, err)
	if grpcstatus.Code(st) == codes.Internal {
		s.logger.Error("rpc failed", zap.String("op", op), zap.Error(err))
	}
	return st
}

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func required(in *structpb.Struct, keys ...string) error {
	for _, k := range keys {
		if str(in, k) == "" {
			return grpcstatus.Errorf(codes.InvalidArgument, "%s is required", k)
		}
	}
	return nil
}

func (s *Service) listMessages(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId"); err != nil {
		return nil, err
	}
	msgs, err := s.db.ListMessages(ctx, str(in, "chatId"))
	if err != nil {
		return nil, s.fail("list messages", err)
	}
	return MessagesToList(msgs)
}

func (s *Service) addMessage(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	msg := in.GetFields()["message"].GetStructValue()
	if msg == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message is required")
	}
	m := MessageFromStruct(msg)
	if m.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message.chatId is required")
	}
	id, err := s.db.AddMessage(ctx, m)
	if err != nil {
		return nil, s.fail("add message", err)
	}
	s.logger.Debug("message added", zap.String("chat_id", m.ChatID), zap.String("msg_id", id))
	return wrapperspb.String(id), nil
}

func (s *Service) updateSummary(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId"); err != nil {
		return nil, err
	}
	sum := chat.SummaryFromDocument(chat.Document(in.GetFields()["summary"].GetStructValue().AsMap()))
	if err := s.db.UpdateSummary(ctx, str(in, "chatId"), sum); err != nil {
		return nil, s.fail("update summary", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) addReader(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId", "messageId", "userId"); err != nil {
		return nil, err
	}
	if err := s.db.AddReader(ctx, str(in, "chatId"), str(in, "messageId"), str(in, "userId")); err != nil {
		return nil, s.fail("add reader", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) advanceStatus(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId", "messageId", "status"); err != nil {
		return nil, err
	}
	to := chat.Status(str(in, "status"))
	if err := s.db.AdvanceStatus(ctx, str(in, "chatId"), str(in, "messageId"), to); err != nil {
		return nil, s.fail("advance status", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) deleteMessage(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId", "messageId"); err != nil {
		return nil, err
	}
	if err := s.db.DeleteMessage(ctx, str(in, "chatId"), str(in, "messageId")); err != nil {
		return nil, s.fail("delete message", err)
	}
	s.logger.Info("message deleted", zap.String("chat_id", str(in, "chatId")), zap.String("msg_id", str(in, "messageId")))
	return &emptypb.Empty{}, nil
}

func (s *Service) messagesNotFrom(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId", "userId"); err != nil {
		return nil, err
	}
	msgs, err := s.db.MessagesNotFrom(ctx, str(in, "chatId"), str(in, "userId"))
	if err != nil {
		return nil, s.fail("messages not from", err)
	}
	return MessagesToList(msgs)
}

func (s *Service) searchMessages(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "query"); err != nil {
		return nil, err
	}
	limit := int(in.GetFields()["limit"].GetNumberValue())
	msgs, err := s.db.SearchMessages(ctx, str(in, "query"), str(in, "chatId"), limit)
	if err != nil {
		return nil, s.fail("search messages", err)
	}
	return MessagesToList(msgs)
}

func (s *Service) createChat(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	c := in.GetFields()["chat"].GetStructValue()
	if c == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat is required")
	}
	id, err := s.db.CreateChat(ctx, ChatFromStruct(c))
	if err != nil {
		return nil, s.fail("create chat", err)
	}
	s.logger.Info("chat created", zap.String("chat_id", id))
	return wrapperspb.String(id), nil
}

func (s *Service) listChats(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	chats, err := s.db.ListChats(ctx, str(in, "companyId"))
	if err != nil {
		return nil, s.fail("list chats", err)
	}
	return ChatsToList(chats)
}

func (s *Service) getChat(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId"); err != nil {
		return nil, err
	}
	c, err := s.db.GetChat(ctx, str(in, "chatId"))
	if err != nil {
		return nil, s.fail("get chat", err)
	}
	return ChatToStruct(c)
}

func (s *Service) setTyping(ctx context.Context, in *structpb.Struct) (proto.Message, error) {
	if err := required(in, "chatId", "userId"); err != nil {
		return nil, err
	}
	typing := in.GetFields()["isTyping"].GetBoolValue()
	if err := s.typing.SetTyping(ctx, str(in, "chatId"), str(in, "userId"), typing); err != nil {
		return nil, s.fail("set typing", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) status(_ context.Context, _ *structpb.Struct) (proto.Message, error) {
	return structpb.NewStruct(map[string]any{
		"profile":     s.info.Profile,
		"presence":    s.info.Presence,
		"startedAt":   s.info.Started.UnixMilli(),
		"subscribers": s.db.Feed().Subscribers(),
	})
}

func (s *Service) watchMessages(in *structpb.Struct, stream grpc.ServerStream) error {
	if err := required(in, "chatId"); err != nil {
		return err
	}
	chatID := str(in, "chatId")
	ctx, cancel := s.watchContext(stream)
	defer cancel()
	ch, err := s.db.WatchMessages(ctx, chatID)
	if err != nil {
		return s.fail("watch messages", err)
	}
	s.logger.Debug("message watch opened", zap.String("chat_id", chatID))
	defer s.logger.Debug("message watch closed", zap.String("chat_id", chatID))

	for snap := range ch {
		if snap.Err != nil {
			return s.fail("watch messages", snap.Err)
		}
		list, err := MessagesToList(snap.Messages)
		if err != nil {
			return s.fail("watch messages", err)
		}
		if err := stream.SendMsg(list); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) watchTyping(in *structpb.Struct, stream grpc.ServerStream) error {
	if err := required(in, "chatId"); err != nil {
		return err
	}
	ctx, cancel := s.watchContext(stream)
	defer cancel()
	ch, err := s.typing.WatchTyping(ctx, str(in, "chatId"))
	if err != nil {
		return s.fail("watch typing", err)
	}
	for snap := range ch {
		if snap.Err != nil {
			return s.fail("watch typing", snap.Err)
		}
		list, err := TypingToList(snap.States)
		if err != nil {
			return s.fail("watch typing", fmt.Errorf("encode typing: %w", err))
		}
		if err := stream.SendMsg(list); err != nil {
			return err
		}
	}
	return nil
}
