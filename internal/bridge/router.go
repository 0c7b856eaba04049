package bridge

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/signallama/signallama/internal/filter"
	"github.com/signallama/signallama/internal/logger"
	"github.com/signallama/signallama/internal/signalapi"
)

// Replies sent when a specific request fails. The user always gets a
// plain-language apology rather than silence.
const (
	completionErrorReply = "Sorry, I encountered an error while processing your request."
	downloadErrorReply   = "Sorry, I couldn't download your voice message."
	transcribeErrorReply = "Sorry, I couldn't transcribe your voice message."
)

// handleMessage classifies one inbound message and produces at most one
// reply. It is the per-message error boundary: nothing that happens
// here may abort the rest of the batch.
func (b *Bridge) handleMessage(ctx context.Context, msg signalapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.L.Error("panic while handling message", "panic", r, "sender", msg.Envelope.Sender())
		}
	}()

	env := msg.Envelope
	if env.DataMessage == nil {
		// Typing indicators, receipts and other non-content events.
		logger.L.Debug("skipping envelope without dataMessage")
		return
	}

	sender := env.Sender()
	if sender == "" {
		logger.L.Debug("skipping envelope without sender")
		return
	}

	// Voice takes priority over any accompanying text.
	if att, ok := firstVoiceAttachment(env.DataMessage.Attachments); ok {
		b.handleVoice(ctx, sender, att)
		return
	}

	if body := strings.TrimSpace(env.DataMessage.Message); body != "" {
		b.handleText(ctx, sender, body)
		return
	}

	logger.L.Debug("skipping envelope without usable content", "sender", sender)
}

func (b *Bridge) handleVoice(ctx context.Context, sender string, att signalapi.Attachment) {
	logger.L.Info("received voice message", "sender", sender, "attachment", att.ID, "content_type", att.ContentType)

	audio, err := b.transport.Attachment(ctx, att.ID)
	if err != nil {
		logger.L.Error("error downloading attachment", "attachment", att.ID, "error", err)
		b.send(ctx, sender, downloadErrorReply)
		return
	}

	text, err := b.transcriber.Transcribe(ctx, audio, attachmentFilename(att))
	if err != nil {
		logger.L.Error("error transcribing voice message", "sender", sender, "error", err)
		b.send(ctx, sender, transcribeErrorReply)
		return
	}
	if strings.TrimSpace(text) == "" {
		// An empty message would be rejected on send anyway.
		logger.L.Warn("transcription produced no text", "sender", sender)
		b.send(ctx, sender, transcribeErrorReply)
		return
	}

	logger.L.Info("transcribed voice message", "sender", sender, "chars", len(text))
	b.send(ctx, sender, text)
}

func (b *Bridge) handleText(ctx context.Context, sender, body string) {
	logger.L.Info("received message", "sender", sender, "chars", len(body))
	b.send(ctx, sender, b.complete(ctx, sender, body))
}

// complete runs one exchange against the LLM backend. Prompt and reply
// are committed to history only after a successful round trip; any
// failure yields the fixed error reply and leaves history untouched.
func (b *Bridge) complete(ctx context.Context, sender, prompt string) string {
	turns, err := b.store.History(sender)
	if err != nil {
		// Degrade to an empty context rather than dropping the message.
		logger.L.Error("error loading history", "sender", sender, "error", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+2)
	if b.cfg.LLM.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: b.cfg.LLM.SystemPrompt,
		})
	}
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := b.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.cfg.LLM.Model,
		Messages: messages,
	})
	if err != nil {
		logger.L.Error("LLM call failed", "sender", sender, "error", err)
		return completionErrorReply
	}
	if len(resp.Choices) == 0 {
		logger.L.Error("LLM response has no choices", "sender", sender)
		return completionErrorReply
	}

	reply := filter.Normalize(resp.Choices[0].Message.Content)

	if err := b.store.Record(sender, openai.ChatMessageRoleUser, prompt); err != nil {
		logger.L.Error("error recording user turn", "sender", sender, "error", err)
	}
	if err := b.store.Record(sender, openai.ChatMessageRoleAssistant, reply); err != nil {
		logger.L.Error("error recording assistant turn", "sender", sender, "error", err)
	}

	return reply
}

// send delivers a reply best-effort: failures are logged, never
// retried.
func (b *Bridge) send(ctx context.Context, recipient, text string) {
	ts, err := b.transport.Send(ctx, recipient, text)
	if err != nil {
		logger.L.Error("error sending reply", "recipient", recipient, "error", err)
		return
	}
	logger.L.Info("sent reply", "recipient", recipient, "timestamp", ts)
}

func attachmentFilename(att signalapi.Attachment) string {
	if att.Filename != "" {
		return att.Filename
	}
	return "voice.ogg"
}
