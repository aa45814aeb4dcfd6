package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/runtime"
)

type telegramSendMessageFunc func(context.Context, *bot.SendMessageParams) (*models.Message, error)
type telegramSendChatActionFunc func(context.Context, *bot.SendChatActionParams) (bool, error)

var _ runtime.Listener = (*TelegramListener)(nil)

// TelegramListener receives Telegram updates and dispatches messages from
// allow-listed chats.
type TelegramListener struct {
	token          string
	allowedChatIDs map[int64]struct{}

	sendMu         sync.Mutex
	sendMessage    telegramSendMessageFunc
	sendChatAction telegramSendChatActionFunc

	chatMu       sync.Mutex
	activeChatID int64
	hasActive    bool
}

// NewTelegram creates a Telegram listener over one bot token and the chat ids
// allowed to talk to it.
func NewTelegram(token string, allowedChatIDs []int64) *TelegramListener {
	allowed := make(map[int64]struct{}, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = struct{}{}
	}
	return &TelegramListener{token: token, allowedChatIDs: allowed}
}

// Listen starts long-polling Telegram and dispatches allow-listed messages.
func (t *TelegramListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if strings.TrimSpace(t.token) == "" {
		return errors.New("telegram token is required")
	}
	if len(t.allowedChatIDs) == 0 {
		logging.Logger().Warn("no allowed telegram chat ids configured; all messages will be ignored")
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	dispatcher := runtime.NewDispatcher(&telegramTypingHandler{listener: t, handler: handler}, defaultDispatchQueue)

	defaultHandler := func(updateCtx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.Message == nil || update.Message.From == nil {
			return
		}
		t.handleInboundMessage(updateCtx, dispatcher, update.Message)
	}

	b, err := bot.New(strings.TrimSpace(t.token), bot.WithDefaultHandler(defaultHandler))
	if err != nil {
		cancelDispatch()
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		cancelDispatch()
		return fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	logging.Logger().Info("connected to telegram", "bot_username", strings.TrimSpace(me.Username))

	t.setSendFuncs(b.SendMessage, b.SendChatAction)

	if err := dispatcher.Start(dispatchCtx); err != nil {
		cancelDispatch()
		return err
	}
	defer func() {
		cancelDispatch()
		dispatcher.Wait()
	}()

	go b.Start(ctx)
	<-ctx.Done()
	dispatcher.Stop()
	return nil
}

// Writer returns a response writer addressing one chat id, for callers that
// need to push to the channel outside the dispatch loop (such as scheduled
// jobs). Text is sent verbatim without markdown rendering, and messages fail
// until the listener has connected.
func (t *TelegramListener) Writer(chatID int64) runtime.ResponseWriter {
	return &telegramWriter{listener: t, chatID: chatID, plain: true}
}

// Send delivers a message to the chat of the request currently being handled.
func (t *TelegramListener) Send(ctx context.Context, message string) error {
	chatID, ok := t.activeChat()
	if !ok {
		return errors.New("no active telegram chat")
	}
	return t.sendFormattedMessage(ctx, chatID, message)
}

func (t *TelegramListener) handleInboundMessage(ctx context.Context, dispatcher *runtime.Dispatcher, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	chatID := msg.Chat.ID
	logging.Logger().Info(
		"telegram inbound message",
		"chat_id", chatID,
		"username", strings.TrimSpace(msg.From.Username),
		"text", messagePreview(msg.Text, 100),
	)

	if !t.isAllowedChat(chatID) {
		return
	}

	writer := &telegramWriter{listener: t, chatID: chatID}
	trimmed := strings.TrimSpace(msg.Text)
	if trimmed == "" {
		return
	}
	if err := dispatcher.Enqueue(ctx, &runtime.Message{Text: trimmed}, writer); err != nil {
		logging.Logger().Warn("telegram enqueue failed", "chat_id", chatID, "err", err)
	}
}

func (t *TelegramListener) isAllowedChat(chatID int64) bool {
	_, ok := t.allowedChatIDs[chatID]
	return ok
}

type telegramWriter struct {
	listener *TelegramListener
	chatID   int64
	plain    bool
}

func (w *telegramWriter) WriteMessage(ctx context.Context, text string) error {
	if w == nil || w.listener == nil {
		return errors.New("telegram sender is not configured")
	}
	if w.plain {
		return w.listener.sendChatMessage(ctx, w.chatID, text)
	}
	return w.listener.sendFormattedMessage(ctx, w.chatID, text)
}

// telegramTypingHandler keeps a typing indicator alive while the wrapped
// handler works on a non-command message.
type telegramTypingHandler struct {
	listener *TelegramListener
	handler  runtime.Handler
}

func (h *telegramTypingHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if writer, ok := w.(*telegramWriter); ok && h.listener != nil {
		h.listener.setActiveChat(writer.chatID)
		defer h.listener.clearActiveChat()
		if msg != nil && !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
			go h.listener.runTypingIndicator(ctx, writer.chatID)
		}
	}
	return h.handler.HandleMessage(ctx, w, msg)
}

func (t *TelegramListener) setActiveChat(chatID int64) {
	t.chatMu.Lock()
	defer t.chatMu.Unlock()
	t.activeChatID = chatID
	t.hasActive = true
}

func (t *TelegramListener) clearActiveChat() {
	t.chatMu.Lock()
	defer t.chatMu.Unlock()
	t.hasActive = false
}

func (t *TelegramListener) activeChat() (int64, bool) {
	t.chatMu.Lock()
	defer t.chatMu.Unlock()
	return t.activeChatID, t.hasActive
}

func (t *TelegramListener) setSendFuncs(send telegramSendMessageFunc, action telegramSendChatActionFunc) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	t.sendMessage = send
	t.sendChatAction = action
}

// sendChatMessage sends text as-is with no parse mode.
func (t *TelegramListener) sendChatMessage(ctx context.Context, chatID int64, text string) error {
	t.sendMu.Lock()
	send := t.sendMessage
	t.sendMu.Unlock()
	if send == nil {
		return errors.New("telegram bot is not connected")
	}
	_, err := send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// sendFormattedMessage renders markdown to Telegram HTML before sending.
// When rendering fails the raw text goes out without a parse mode.
func (t *TelegramListener) sendFormattedMessage(ctx context.Context, chatID int64, text string) error {
	t.sendMu.Lock()
	send := t.sendMessage
	t.sendMu.Unlock()
	if send == nil {
		return errors.New("telegram bot is not connected")
	}
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	// Text that renders to nothing, such as a bare raw-HTML block, goes out
	// unformatted rather than as an empty message.
	if formatted, ok := formatTelegram(text); ok && formatted != "" {
		params.Text = formatted
		params.ParseMode = models.ParseModeHTML
	}
	_, err := send(ctx, params)
	return err
}

func (t *TelegramListener) runTypingIndicator(ctx context.Context, chatID int64) {
	t.sendTypingAction(ctx, chatID)

	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sendTypingAction(ctx, chatID)
		}
	}
}

func (t *TelegramListener) sendTypingAction(ctx context.Context, chatID int64) {
	t.sendMu.Lock()
	send := t.sendChatAction
	t.sendMu.Unlock()
	if send == nil {
		return
	}
	send(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
}

func messagePreview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
