package chat

import (
	"encoding/json"
	"time"
)

// Document is the store-neutral field map a message, chat or typing record is
// encoded to. Values are restricted to string, bool, int64, float64, []any,
// map[string]any and nil so any JSON-like transport can carry them.
type Document map[string]any

// ToDocument encodes m using the DriftPro document field names. Timestamps
// are Unix milliseconds. The ID is not part of the document.
func (m *Message) ToDocument() Document {
	doc := Document{
		"text":              m.Text,
		"senderId":          m.SenderID,
		"senderName":        m.SenderName,
		"chatId":            m.ChatID,
		"companyId":         m.CompanyID,
		"createdAt":         m.CreatedAt.UnixMilli(),
		"mediaURLs":         anyList(m.MediaURLs),
		"messageType":       string(m.MessageType),
		"isEdited":          m.IsEdited,
		"replyToMessageId":  m.ReplyToMessageID,
		"forwardedFrom":     m.ForwardedFrom,
		"forwardedFromName": m.ForwardedFromName,
		"status":            string(m.Status),
		"readBy":            anyList(m.ReadBy),
		"deliveredTo":       anyList(m.DeliveredTo),
		"fileName":          m.FileName,
	}
	if m.IsEdited && m.EditedAt != nil {
		doc["editedAt"] = m.EditedAt.UnixMilli()
	}
	if m.Location != nil {
		doc["location"] = map[string]any{
			"latitude":  m.Location.Latitude,
			"longitude": m.Location.Longitude,
			"address":   m.Location.Address,
			"name":      m.Location.Name,
		}
	}
	if m.Contact != nil {
		doc["contact"] = map[string]any{
			"name":   m.Contact.Name,
			"phone":  m.Contact.Phone,
			"email":  m.Contact.Email,
			"avatar": m.Contact.Avatar,
		}
	}
	if m.AudioDuration != nil {
		doc["audioDuration"] = *m.AudioDuration
	}
	if m.FileSize != nil {
		doc["fileSize"] = *m.FileSize
	}
	return doc
}

// MessageFromDocument decodes a message document. Missing or mistyped fields
// are left at their zero value instead of failing, so one malformed record
// never drops a whole snapshot.
func MessageFromDocument(id string, doc Document) Message {
	m := Message{
		ID:                id,
		Text:              str(doc["text"]),
		SenderID:          str(doc["senderId"]),
		SenderName:        str(doc["senderName"]),
		ChatID:            str(doc["chatId"]),
		CompanyID:         str(doc["companyId"]),
		MediaURLs:         strList(doc["mediaURLs"]),
		MessageType:       MessageType(str(doc["messageType"])),
		IsEdited:          boolean(doc["isEdited"]),
		ReplyToMessageID:  str(doc["replyToMessageId"]),
		ForwardedFrom:     str(doc["forwardedFrom"]),
		ForwardedFromName: str(doc["forwardedFromName"]),
		Status:            Status(str(doc["status"])),
		ReadBy:            strList(doc["readBy"]),
		DeliveredTo:       strList(doc["deliveredTo"]),
		FileName:          str(doc["fileName"]),
	}
	if t, ok := timestamp(doc["createdAt"]); ok {
		m.CreatedAt = t
	}
	if m.IsEdited {
		if t, ok := timestamp(doc["editedAt"]); ok {
			m.EditedAt = &t
		}
	}
	if loc, ok := doc["location"].(map[string]any); ok {
		lat, _ := number(loc["latitude"])
		lng, _ := number(loc["longitude"])
		m.Location = &Location{Latitude: lat, Longitude: lng, Address: str(loc["address"]), Name: str(loc["name"])}
	}
	if c, ok := doc["contact"].(map[string]any); ok {
		m.Contact = &Contact{Name: str(c["name"]), Phone: str(c["phone"]), Email: str(c["email"]), Avatar: str(c["avatar"])}
	}
	if d, ok := number(doc["audioDuration"]); ok {
		m.AudioDuration = &d
	}
	if n, ok := number(doc["fileSize"]); ok {
		size := int64(n)
		m.FileSize = &size
	}
	if !m.Status.Valid() {
		m.Status = ""
	}
	return m
}

// ToDocument encodes the summary fields written onto the parent chat record.
func (s Summary) ToDocument() Document {
	return Document{
		"lastMessage":       s.LastMessage,
		"lastMessageAt":     s.LastMessageAt.UnixMilli(),
		"lastMessageSender": s.LastMessageSender,
		"lastMessageStatus": string(s.LastMessageStatus),
	}
}

// SummaryFromDocument decodes summary fields, tolerating missing ones.
func SummaryFromDocument(doc Document) Summary {
	s := Summary{
		LastMessage:       str(doc["lastMessage"]),
		LastMessageSender: str(doc["lastMessageSender"]),
		LastMessageStatus: Status(str(doc["lastMessageStatus"])),
	}
	if t, ok := timestamp(doc["lastMessageAt"]); ok {
		s.LastMessageAt = t
	}
	return s
}

// ToDocument encodes a chat, including its summary fields.
func (c *Chat) ToDocument() Document {
	doc := c.Summary.ToDocument()
	doc["companyId"] = c.CompanyID
	doc["name"] = c.Name
	doc["participants"] = anyList(c.Participants)
	return doc
}

// ChatFromDocument decodes a chat document.
func ChatFromDocument(id string, doc Document) Chat {
	return Chat{
		ID:           id,
		CompanyID:    str(doc["companyId"]),
		Name:         str(doc["name"]),
		Participants: strList(doc["participants"]),
		Summary:      SummaryFromDocument(doc),
	}
}

// ToDocument encodes a typing record.
func (t TypingState) ToDocument() Document {
	return Document{
		"chatId":    t.ChatID,
		"userId":    t.UserID,
		"isTyping":  t.Typing,
		"updatedAt": t.UpdatedAt.UnixMilli(),
	}
}

// TypingFromDocument decodes a typing record.
func TypingFromDocument(doc Document) TypingState {
	ts := TypingState{
		ChatID: str(doc["chatId"]),
		UserID: str(doc["userId"]),
		Typing: boolean(doc["isTyping"]),
	}
	if t, ok := timestamp(doc["updatedAt"]); ok {
		ts.UpdatedAt = t
	}
	return ts
}

func anyList(ss []string) []any {
	if ss == nil {
		return nil
	}
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func strList(v any) []string {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func timestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	if ms, ok := number(v); ok {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}
