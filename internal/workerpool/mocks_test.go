package workerpool_test

import (
	"context"

	"github.com/golang/mock/gomock"

	"github.com/graydnsapconet/tgbot/internal/types"
)

// mockCompletionClient is a hand-written gomock-backed mock for
// completion.Client; the interface is small enough not to need mockgen.
type mockCompletionClient struct{ c *gomock.Controller }

func newMockCompletionClient(ctrl *gomock.Controller) *mockCompletionClient {
	return &mockCompletionClient{c: ctrl}
}

func (m *mockCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	results := m.c.Call(m, "Complete", ctx, prompt)
	reply, _ := results[0].(string)
	err, _ := results[1].(error)
	return reply, err
}

func (m *mockCompletionClient) Expect(prompt interface{}) *gomock.Call {
	return m.c.RecordCall(m, "Complete", gomock.Any(), prompt)
}

// mockSender is a gomock-style mock for sender.Sender.
type mockSender struct{ c *gomock.Controller }

func newMockSender(ctrl *gomock.Controller) *mockSender {
	return &mockSender{c: ctrl}
}

func (m *mockSender) SendMessage(ctx context.Context, chat types.ChatID, text string) error {
	results := m.c.Call(m, "SendMessage", ctx, chat, text)
	err, _ := results[0].(error)
	return err
}

func (m *mockSender) SendTyping(ctx context.Context, chat types.ChatID) error {
	results := m.c.Call(m, "SendTyping", ctx, chat)
	err, _ := results[0].(error)
	return err
}

func (m *mockSender) ExpectSendMessage(chat types.ChatID, text interface{}) *gomock.Call {
	return m.c.RecordCall(m, "SendMessage", gomock.Any(), chat, text)
}

func (m *mockSender) ExpectSendTyping(chat types.ChatID) *gomock.Call {
	return m.c.RecordCall(m, "SendTyping", gomock.Any(), chat)
}
