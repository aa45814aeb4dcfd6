package channels

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/millwright-ai/millwright/internal/commands"
	"github.com/millwright-ai/millwright/internal/runtime"
)

func TestFormatTelegramMappings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold",
			input:    "**bold**",
			expected: "<b>bold</b>",
		},
		{
			name:     "italic",
			input:    "*italic*",
			expected: "<i>italic</i>",
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			expected: "<s>gone</s>",
		},
		{
			name:     "heading",
			input:    "# Title",
			expected: "<b>Title</b>\n",
		},
		{
			name:     "inline code",
			input:    "`echo hi`",
			expected: "<code>echo hi</code>",
		},
		{
			name:     "fenced code",
			input:    "```go\nfmt.Println(\"hi\")\n```",
			expected: "<pre><code>fmt.Println(&#34;hi&#34;)\n</code></pre>",
		},
		{
			name:     "link",
			input:    "[site](https://example.com)",
			expected: `<a href="https://example.com">site</a>`,
		},
		{
			name:     "list item",
			input:    "- one\n- two",
			expected: "- one\n- two\n",
		},
		{
			name:     "plain passthrough",
			input:    "hello world",
			expected: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatTelegram(tt.input)
			if !ok {
				t.Fatalf("expected format success for input %q", tt.input)
			}
			if got != tt.expected {
				t.Fatalf("unexpected format output\ninput: %q\ngot: %q\nexpected: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatTelegram_OmitsImagesAndRawHTML(t *testing.T) {
	got, ok := formatTelegram(`<b>raw</b> ![img](https://example.com/a.png)`)
	if !ok {
		t.Fatal("expected format success")
	}
	if strings.Contains(got, "<b>") || strings.Contains(got, "</b>") {
		t.Fatalf("expected raw html tags to be omitted, got %q", got)
	}
	if strings.Contains(got, "<img") {
		t.Fatalf("expected image tags to be omitted, got %q", got)
	}
}

func TestFormatTelegram_RenderErrorFallback(t *testing.T) {
	formatted, err := renderTelegram("hello", nil)
	if err == nil {
		t.Fatal("expected render error for nil parser")
	}
	if formatted != "" {
		t.Fatalf("expected empty formatted output on render failure, got %q", formatted)
	}

	got, ok := formatTelegram("hello")
	if !ok {
		t.Fatal("expected standard formatter to succeed")
	}
	if got != "hello" {
		t.Fatalf("expected passthrough text, got %q", got)
	}
}

func TestTelegramWriterWriteMessage_UsesHTMLParseMode(t *testing.T) {
	listener := NewTelegram("token", nil)

	var sent *bot.SendMessageParams
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		sent = params
		return &models.Message{ID: 1, Chat: models.Chat{ID: chatIDFromAny(params.ChatID)}}, nil
	}

	writer := &telegramWriter{listener: listener, chatID: 42}
	if err := writer.WriteMessage(context.Background(), "**ok**"); err != nil {
		t.Fatalf("write message: %v", err)
	}

	if sent == nil {
		t.Fatal("expected send message call")
	}
	if sent.ParseMode != models.ParseModeHTML {
		t.Fatalf("expected ParseModeHTML, got %q", sent.ParseMode)
	}
	if sent.Text != "<b>ok</b>" {
		t.Fatalf("unexpected formatted text: %q", sent.Text)
	}
}

func TestTelegramWriterWriteMessage_FormatterFailureFallsBackToPlain(t *testing.T) {
	original := telegramMarkdown
	telegramMarkdown = nil
	defer func() {
		telegramMarkdown = original
	}()

	listener := NewTelegram("token", nil)
	var sent *bot.SendMessageParams
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		sent = params
		return &models.Message{ID: 1, Chat: models.Chat{ID: chatIDFromAny(params.ChatID)}}, nil
	}

	writer := &telegramWriter{listener: listener, chatID: 42}
	if err := writer.WriteMessage(context.Background(), "**ok**"); err != nil {
		t.Fatalf("write message: %v", err)
	}

	if sent == nil {
		t.Fatal("expected send message call")
	}
	if sent.ParseMode != "" {
		t.Fatalf("expected empty parse mode on formatter failure, got %q", sent.ParseMode)
	}
	if sent.Text != "**ok**" {
		t.Fatalf("expected plain fallback text, got %q", sent.Text)
	}
}

func TestTelegramListenerWriter_SendsVerbatim(t *testing.T) {
	listener := NewTelegram("token", nil)

	var sent *bot.SendMessageParams
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		sent = params
		return &models.Message{ID: 1, Chat: models.Chat{ID: chatIDFromAny(params.ChatID)}}, nil
	}

	writer := listener.Writer(42)
	if err := writer.WriteMessage(context.Background(), "**ok**"); err != nil {
		t.Fatalf("write message: %v", err)
	}

	if sent == nil {
		t.Fatal("expected send message call")
	}
	if sent.ParseMode != "" {
		t.Fatalf("expected no parse mode for verbatim writer, got %q", sent.ParseMode)
	}
	if sent.Text != "**ok**" {
		t.Fatalf("expected verbatim text, got %q", sent.Text)
	}
	if got := chatIDFromAny(sent.ChatID); got != 42 {
		t.Fatalf("expected chat id 42, got %d", got)
	}
}

func TestTelegramListenerWriter_NotConnectedReturnsError(t *testing.T) {
	listener := NewTelegram("token", nil)
	writer := listener.Writer(42)
	if err := writer.WriteMessage(context.Background(), "hello"); err == nil {
		t.Fatal("expected error before the bot has connected")
	}
}

func TestTelegramSendChatMessage_DoesNotSetParseMode(t *testing.T) {
	listener := NewTelegram("token", nil)

	var sent *bot.SendMessageParams
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		sent = params
		return &models.Message{ID: 1, Chat: models.Chat{ID: chatIDFromAny(params.ChatID)}}, nil
	}

	if err := listener.sendChatMessage(context.Background(), 42, "**ok**"); err != nil {
		t.Fatalf("send chat message: %v", err)
	}
	if sent == nil {
		t.Fatal("expected send message call")
	}
	if sent.ParseMode != "" {
		t.Fatalf("expected empty parse mode for plain chat send, got %q", sent.ParseMode)
	}
	if sent.Text != "**ok**" {
		t.Fatalf("unexpected plain text send content: %q", sent.Text)
	}
}

func TestTelegramListenerSend_UsesHTMLParseMode(t *testing.T) {
	listener := NewTelegram("token", nil)
	listener.setActiveChat(42)

	var sent *bot.SendMessageParams
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		sent = params
		return &models.Message{ID: 1, Chat: models.Chat{ID: chatIDFromAny(params.ChatID)}}, nil
	}

	if err := listener.Send(context.Background(), "**ok**"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sent == nil {
		t.Fatal("expected send call")
	}
	if sent.ParseMode != models.ParseModeHTML {
		t.Fatalf("expected ParseModeHTML, got %q", sent.ParseMode)
	}
	if sent.Text != "<b>ok</b>" {
		t.Fatalf("unexpected formatted text: %q", sent.Text)
	}
}

func TestTelegramListenerSend_NoActiveChatReturnsError(t *testing.T) {
	listener := NewTelegram("token", nil)
	if err := listener.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error without an active chat")
	}
}

func TestTelegramListener_AllowedChatIsDispatched(t *testing.T) {
	listener := NewTelegram("token", []int64{10})

	handler := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	dispatcher, stop := startTestDispatcher(t, handler)
	defer stop()

	configureTelegramSendCapture(listener, &outboundMessages{})
	listener.handleInboundMessage(
		context.Background(),
		dispatcher,
		&models.Message{
			From: &models.User{ID: 111, Username: "alice"},
			Chat: models.Chat{ID: 10},
			Text: "hello",
		},
	)

	select {
	case msg := <-handler.done:
		if msg.Text != "hello" {
			t.Fatalf("unexpected dispatched text: %q", msg.Text)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected allow-listed message to be dispatched")
	}
}

func TestTelegramListener_UnknownChatIsDropped(t *testing.T) {
	listener := NewTelegram("token", []int64{10})

	handler := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	dispatcher, stop := startTestDispatcher(t, handler)
	defer stop()

	outbound := &outboundMessages{}
	configureTelegramSendCapture(listener, outbound)
	listener.handleInboundMessage(
		context.Background(),
		dispatcher,
		&models.Message{
			From: &models.User{ID: 111, Username: "alice"},
			Chat: models.Chat{ID: 99},
			Text: "hello",
		},
	)

	select {
	case msg := <-handler.done:
		t.Fatalf("expected no handler call for unknown chat, got %#v", msg)
	case <-time.After(80 * time.Millisecond):
	}
	if got := outbound.all(); len(got) != 0 {
		t.Fatalf("expected no outbound messages, got %#v", got)
	}
}

func TestTelegramListener_HelpCommandHandledByCommandsHandler(t *testing.T) {
	listener := NewTelegram("token", []int64{10})

	next := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	router := commands.Router{
		Commands: commands.New(nil, nil, nil),
		Next:     next,
	}
	dispatcher, stop := startTestDispatcher(t, router)
	defer stop()

	outbound := &outboundMessages{}
	configureTelegramSendCapture(listener, outbound)
	listener.handleInboundMessage(
		context.Background(),
		dispatcher,
		&models.Message{
			From: &models.User{ID: 111, Username: "alice"},
			Chat: models.Chat{ID: 10},
			Text: "/help",
		},
	)

	deadline := time.Now().Add(300 * time.Millisecond)
	for len(outbound.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a command response")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-next.done:
		t.Fatal("expected /help to be handled before agent dispatch")
	default:
	}
	if got := outbound.all(); !strings.Contains(got[0], "Commands: /help") {
		t.Fatalf("unexpected /help response: %q", got[0])
	}
}

func TestTelegramListener_UnknownSlashFallsThroughToAgent(t *testing.T) {
	listener := NewTelegram("token", []int64{10})

	next := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	router := commands.Router{
		Commands: commands.New(nil, nil, nil),
		Next:     next,
	}
	dispatcher, stop := startTestDispatcher(t, router)
	defer stop()

	configureTelegramSendCapture(listener, &outboundMessages{})
	listener.handleInboundMessage(
		context.Background(),
		dispatcher,
		&models.Message{
			From: &models.User{ID: 111, Username: "alice"},
			Chat: models.Chat{ID: 10},
			Text: "/doesnotexist",
		},
	)

	select {
	case msg := <-next.done:
		if msg.Text != "/doesnotexist" {
			t.Fatalf("unexpected dispatched text: %q", msg.Text)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected unknown slash command to be dispatched to agent")
	}
}

func TestTelegramListener_EnqueueIsNonBlocking(t *testing.T) {
	listener := NewTelegram("token", []int64{10})

	block := make(chan struct{})
	handler := &telegramBlockingHandler{block: block}
	dispatcher, stop := startTestDispatcher(t, handler)
	defer stop()

	done := make(chan struct{})
	start := time.Now()
	go func() {
		configureTelegramSendCapture(listener, &outboundMessages{})
		listener.handleInboundMessage(
			context.Background(),
			dispatcher,
			&models.Message{
				From: &models.User{ID: 111, Username: "alice"},
				Chat: models.Chat{ID: 10},
				Text: "hello",
			},
		)
		close(done)
	}()

	select {
	case <-done:
		if time.Since(start) > 100*time.Millisecond {
			t.Fatalf("enqueue unexpectedly slow: %s", time.Since(start))
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected enqueue path to return quickly")
	}
	close(block)
}

func TestTelegramTypingHandler_SendsTypingForNonSlash(t *testing.T) {
	listener := NewTelegram("token", nil)
	actionCalls := make(chan *bot.SendChatActionParams, 1)
	listener.sendChatAction = func(_ context.Context, params *bot.SendChatActionParams) (bool, error) {
		select {
		case actionCalls <- params:
		default:
		}
		return true, nil
	}

	block := make(chan struct{})
	handler := &telegramTypingHandler{
		listener: listener,
		handler:  &telegramBlockingHandler{block: block},
	}
	writer := &telegramWriter{listener: listener, chatID: 42}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.HandleMessage(ctx, writer, &runtime.Message{Text: "hello"})
	}()

	select {
	case params := <-actionCalls:
		if got := chatIDFromAny(params.ChatID); got != 42 {
			t.Fatalf("unexpected typing chat id: %d", got)
		}
		if params.Action != models.ChatActionTyping {
			t.Fatalf("unexpected chat action: %q", params.Action)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected typing action for non-slash message")
	}

	close(block)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("handler failed: %v", err)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("handler did not complete")
	}
}

func TestTelegramTypingHandler_DoesNotSendTypingForSlash(t *testing.T) {
	listener := NewTelegram("token", nil)
	actionCalls := make(chan *bot.SendChatActionParams, 1)
	listener.sendChatAction = func(_ context.Context, params *bot.SendChatActionParams) (bool, error) {
		select {
		case actionCalls <- params:
		default:
		}
		return true, nil
	}

	block := make(chan struct{})
	handler := &telegramTypingHandler{
		listener: listener,
		handler:  &telegramBlockingHandler{block: block},
	}
	writer := &telegramWriter{listener: listener, chatID: 42}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.HandleMessage(ctx, writer, &runtime.Message{Text: "/help"})
	}()

	select {
	case <-actionCalls:
		t.Fatal("did not expect typing action for slash command")
	case <-time.After(120 * time.Millisecond):
	}

	close(block)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("handler failed: %v", err)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("handler did not complete")
	}
}

func TestTelegramTypingHandler_TracksActiveChat(t *testing.T) {
	listener := NewTelegram("token", nil)

	var sentDuring *bot.SendMessageParams
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		sentDuring = params
		return &models.Message{ID: 1, Chat: models.Chat{ID: chatIDFromAny(params.ChatID)}}, nil
	}

	handler := &telegramTypingHandler{
		listener: listener,
		handler: telegramFuncHandler(func(ctx context.Context, _ runtime.ResponseWriter, _ *runtime.Message) error {
			return listener.Send(ctx, "working on it")
		}),
	}
	writer := &telegramWriter{listener: listener, chatID: 42}

	if err := handler.HandleMessage(context.Background(), writer, &runtime.Message{Text: "/status"}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if sentDuring == nil {
		t.Fatal("expected send during handling")
	}
	if got := chatIDFromAny(sentDuring.ChatID); got != 42 {
		t.Fatalf("expected active chat 42, got %d", got)
	}

	if err := listener.Send(context.Background(), "too late"); err == nil {
		t.Fatal("expected error after handling completed")
	}
}

func TestMessagePreview_TruncatesToLimit(t *testing.T) {
	full := strings.Repeat("x", 120)
	got := messagePreview(full, 100)
	if len(got) != 100 {
		t.Fatalf("expected 100-char preview, got %d", len(got))
	}
}

type telegramTestHandler struct {
	done chan *runtime.Message
}

func (h *telegramTestHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	select {
	case h.done <- msg:
	default:
	}
	return w.WriteMessage(ctx, "ok")
}

type telegramBlockingHandler struct {
	block <-chan struct{}
}

func (h *telegramBlockingHandler) HandleMessage(context.Context, runtime.ResponseWriter, *runtime.Message) error {
	<-h.block
	return nil
}

type telegramFuncHandler func(context.Context, runtime.ResponseWriter, *runtime.Message) error

func (f telegramFuncHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	return f(ctx, w, msg)
}

type outboundMessages struct {
	mu       sync.Mutex
	messages []string
}

func (o *outboundMessages) append(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, text)
}

func (o *outboundMessages) all() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.messages...)
}

func startTestDispatcher(t *testing.T, handler runtime.Handler) (*runtime.Dispatcher, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := runtime.NewDispatcher(handler, defaultDispatchQueue)
	if err := dispatcher.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start dispatcher: %v", err)
	}
	return dispatcher, func() {
		cancel()
		dispatcher.Wait()
	}
}

func chatIDFromAny(chatID any) int64 {
	switch v := chatID.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func configureTelegramSendCapture(listener *TelegramListener, outbound *outboundMessages) {
	listener.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		if outbound != nil {
			outbound.append(params.Text)
		}
		return &models.Message{
			ID:   1,
			Chat: models.Chat{ID: chatIDFromAny(params.ChatID)},
		}, nil
	}
	listener.sendChatAction = func(context.Context, *bot.SendChatActionParams) (bool, error) {
		return true, nil
	}
}
