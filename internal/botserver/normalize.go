package botserver

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// normalizeQuery prepares an inbound query for the bot's handler according
// to the bot's attachment flags. should_insert_attachment_messages wins
// over the deprecated concat_attachments_to_message when both are set; the
// deprecated path is logged and ignored. Inserted attachment messages are
// then folded into an author-role-alternated view whose attachments are
// deduplicated by URL.
func normalizeQuery(lg *zerolog.Logger, bot protocol.PoeBot, req protocol.QueryRequest) protocol.QueryRequest {
	switch {
	case bot.ShouldInsertAttachmentMessages:
		if bot.ConcatAttachmentsToMessage {
			lg.Warn().Str("bot", bot.Path).
				Msg("concat_attachments_to_message is deprecated and ignored; inserting attachment messages instead")
		}
		req.Query = mergeRoleAlternation(insertAttachmentMessages(req.Query))
	case bot.ConcatAttachmentsToMessage:
		lg.Warn().Str("bot", bot.Path).
			Msg("concat_attachments_to_message is deprecated; set should_insert_attachment_messages instead")
		req.Query = concatAttachmentsToMessages(req.Query)
	}
	return req
}

// attachmentText renders one parsed attachment as message content.
func attachmentText(a protocol.Attachment) string {
	return fmt.Sprintf("Attachment file name: %s\n\nAttachment text: %s", a.Name, a.ParsedContent)
}

// insertAttachmentMessages inserts, before each message, one user message
// per attachment that carries parsed content. Attachments without parsed
// content stay on their original message untouched.
func insertAttachmentMessages(msgs []protocol.ProtocolMessage) []protocol.ProtocolMessage {
	out := make([]protocol.ProtocolMessage, 0, len(msgs))
	for _, m := range msgs {
		for _, a := range m.Attachments {
			if a.ParsedContent == "" {
				continue
			}
			out = append(out, protocol.ProtocolMessage{
				Role:        protocol.RoleUser,
				Content:     attachmentText(a),
				ContentType: protocol.ContentTypePlain,
				Timestamp:   m.Timestamp,
				MessageID:   m.MessageID,
				Attachments: []protocol.Attachment{a},
			})
		}
		out = append(out, m)
	}
	return out
}

// concatAttachmentsToMessages is the deprecated variant: parsed attachment
// content is appended to its own message's content instead of becoming a
// separate message.
func concatAttachmentsToMessages(msgs []protocol.ProtocolMessage) []protocol.ProtocolMessage {
	out := make([]protocol.ProtocolMessage, len(msgs))
	copy(out, msgs)
	for i, m := range out {
		parts := []string{m.Content}
		for _, a := range m.Attachments {
			if a.ParsedContent == "" {
				continue
			}
			parts = append(parts, attachmentText(a))
		}
		out[i].Content = strings.Join(parts, "\n\n")
	}
	return out
}

// mergeRoleAlternation folds consecutive same-role messages into one,
// joining content and concatenating attachments with duplicates (by URL)
// dropped, so the handler sees a strictly author-alternated sequence.
func mergeRoleAlternation(msgs []protocol.ProtocolMessage) []protocol.ProtocolMessage {
	if len(msgs) < 2 {
		return msgs
	}
	out := make([]protocol.ProtocolMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(out) == 0 || out[len(out)-1].Role != m.Role {
			out = append(out, m)
			continue
		}
		prev := &out[len(out)-1]
		if m.Content != "" {
			if prev.Content != "" {
				prev.Content += "\n\n"
			}
			prev.Content += m.Content
		}
		merged := make([]protocol.Attachment, 0, len(prev.Attachments)+len(m.Attachments))
		merged = append(merged, prev.Attachments...)
		merged = append(merged, m.Attachments...)
		prev.Attachments = dedupeAttachments(merged)
	}
	return out
}

// dedupeAttachments keeps the first attachment seen for each URL.
func dedupeAttachments(atts []protocol.Attachment) []protocol.Attachment {
	seen := make(map[string]struct{}, len(atts))
	out := atts[:0]
	for _, a := range atts {
		if _, ok := seen[a.URL]; ok {
			continue
		}
		seen[a.URL] = struct{}{}
		out = append(out, a)
	}
	return out
}
