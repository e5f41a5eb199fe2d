package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/driftpro/internal/chat"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages travel as their document form plus an "id" field, so the wire
// format is the same field map the store persists.

// MessageToStruct encodes m for the wire.
func MessageToStruct(m chat.Message) (*structpb.Struct, error) {
	doc := m.ToDocument()
	doc["id"] = m.ID
	return structpb.NewStruct(doc)
}

// MessageFromStruct decodes a wire message.
func MessageFromStruct(s *structpb.Struct) chat.Message {
	doc := chat.Document(s.AsMap())
	id, _ := doc["id"].(string)
	return chat.MessageFromDocument(id, doc)
}

// MessagesToList encodes an ordered message list.
func MessagesToList(msgs []chat.Message) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(msgs))}
	for _, m := range msgs {
		s, err := MessageToStruct(m)
		if err != nil {
			return nil, fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

// MessagesFromList decodes an ordered message list. Entries that are not
// objects are skipped.
func MessagesFromList(l *structpb.ListValue) []chat.Message {
	msgs := make([]chat.Message, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		if s := v.GetStructValue(); s != nil {
			msgs = append(msgs, MessageFromStruct(s))
		}
	}
	return msgs
}

// ChatToStruct encodes c for the wire.
func ChatToStruct(c chat.Chat) (*structpb.Struct, error) {
	doc := c.ToDocument()
	doc["id"] = c.ID
	return structpb.NewStruct(doc)
}

// ChatFromStruct decodes a wire chat.
func ChatFromStruct(s *structpb.Struct) chat.Chat {
	doc := chat.Document(s.AsMap())
	id, _ := doc["id"].(string)
	return chat.ChatFromDocument(id, doc)
}

// ChatsToList encodes a chat list.
func ChatsToList(chats []chat.Chat) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(chats))}
	for _, c := range chats {
		s, err := ChatToStruct(c)
		if err != nil {
			return nil, fmt.Errorf("encode chat %s: %w", c.ID, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

// ChatsFromList decodes a chat list.
func ChatsFromList(l *structpb.ListValue) []chat.Chat {
	chats := make([]chat.Chat, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		if s := v.GetStructValue(); s != nil {
			chats = append(chats, ChatFromStruct(s))
		}
	}
	return chats
}

// TypingToList encodes typing records.
func TypingToList(states []chat.TypingState) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(states))}
	for _, st := range states {
		s, err := structpb.NewStruct(st.ToDocument())
		if err != nil {
			return nil, err
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

// TypingFromList decodes typing records.
func TypingFromList(l *structpb.ListValue) []chat.TypingState {
	states := make([]chat.TypingState, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		if s := v.GetStructValue(); s != nil {
			states = append(states, chat.TypingFromDocument(chat.Document(s.AsMap())))
		}
	}
	return states
}

// toStatus maps a store error onto a gRPC status.
func toStatus(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrNotFound):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, chat.ErrInvalidTransition):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return grpcstatus.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// FromStatus restores the chat sentinel errors from a gRPC status so callers
// on the client side can use errors.Is.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), chat.ErrNotFound)
	case codes.FailedPrecondition:
		return fmt.Errorf("%s: %w", st.Message(), chat.ErrInvalidTransition)
	}
	return err
}
