package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"mail-relay-bot/internal/models"
)

type sentNotice struct {
	chatID int64
	text   string
	link   string
}

type MockSender struct {
	Fail map[int64]error
	Sent []sentNotice
}

func (m *MockSender) Send(ctx context.Context, chatID int64, text, link string) error {
	if err := m.Fail[chatID]; err != nil {
		return err
	}
	m.Sent = append(m.Sent, sentNotice{chatID: chatID, text: text, link: link})
	return nil
}

type MockRoster struct {
	IDs []int64
	Err error
}

func (m *MockRoster) ListChatIDs(ctx context.Context) ([]int64, error) {
	return m.IDs, m.Err
}

func testMail() *models.Mail {
	return &models.Mail{
		Sender:  "App@Example.com",
		Subject: "Your code",
		Date:    time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		Text:    "Code: 1234",
		TraceID: "test-trace",
	}
}

func TestNotify_FanOutSurvivesOneFailure(t *testing.T) {
	sender := &MockSender{Fail: map[int64]error{2: errors.New("bot was blocked by the user")}}
	roster := &MockRoster{IDs: []int64{1, 2, 3}}
	svc := NewService(sender, roster, nil, "https://relay.example.com/", nil)

	if err := svc.Notify(context.Background(), testMail(), 17); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	if len(sender.Sent) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(sender.Sent))
	}
	if sender.Sent[0].chatID != 1 || sender.Sent[1].chatID != 3 {
		t.Errorf("Expected chats 1 and 3 to receive, got %v", sender.Sent)
	}
	for _, n := range sender.Sent {
		if n.link != "https://relay.example.com/mail/17" {
			t.Errorf("link = %q, want https://relay.example.com/mail/17", n.link)
		}
	}
}

func TestNotify_RosterError(t *testing.T) {
	boom := errors.New("database is locked")
	svc := NewService(&MockSender{}, &MockRoster{Err: boom}, nil, "", nil)

	if err := svc.Notify(context.Background(), testMail(), 1); !errors.Is(err, boom) {
		t.Errorf("Notify() error = %v, want %v", err, boom)
	}
}

func TestNotify_EmptyRoster(t *testing.T) {
	sender := &MockSender{}
	svc := NewService(sender, &MockRoster{}, nil, "", nil)

	if err := svc.Notify(context.Background(), testMail(), 1); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if len(sender.Sent) != 0 {
		t.Errorf("Expected no deliveries, got %d", len(sender.Sent))
	}
}

func TestNotify_CancelledContextStopsQuietly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &MockSender{}
	svc := NewService(sender, &MockRoster{IDs: []int64{1, 2}}, nil, "", nil)

	if err := svc.Notify(ctx, testMail(), 1); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if len(sender.Sent) != 0 {
		t.Errorf("Expected no deliveries after cancellation, got %d", len(sender.Sent))
	}
}

func TestLabel(t *testing.T) {
	svc := NewService(&MockSender{}, &MockRoster{}, map[string]string{"app@example.com": "026 PixVerse"}, "", nil)

	if got := svc.Label("APP@example.com"); got != "026 PixVerse" {
		t.Errorf("Label() = %q, want 026 PixVerse", got)
	}
	if got := svc.Label("stranger@example.com"); got != UnknownLabel {
		t.Errorf("Label() = %q, want %q", got, UnknownLabel)
	}
}

func TestLabel_MapIsCopied(t *testing.T) {
	labels := map[string]string{"app@example.com": "first"}
	svc := NewService(&MockSender{}, &MockRoster{}, labels, "", nil)
	labels["app@example.com"] = "changed"

	if got := svc.Label("app@example.com"); got != "first" {
		t.Errorf("Label() = %q after caller mutation, want first", got)
	}
}

func TestFormatSummary(t *testing.T) {
	got := FormatSummary(testMail(), "026 PixVerse")

	for _, want := range []string{
		"Sender: App@Example.com",
		"Application: 026 PixVerse",
		"Subject: Your code",
		"Time: 2024-05-01 10:30:00",
		"Text: Code: 1234",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSummary() missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatSummary_Truncated(t *testing.T) {
	mail := testMail()
	mail.Text = strings.Repeat("ж", 5000)

	got := FormatSummary(mail, UnknownLabel)
	if n := utf8.RuneCountInString(got); n != MaxSummaryLength {
		t.Errorf("summary length = %d runes, want %d", n, MaxSummaryLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte character")
	}
}

func TestFormatSummary_NoText(t *testing.T) {
	mail := testMail()
	mail.Text = ""

	if got := FormatSummary(mail, UnknownLabel); !strings.Contains(got, "Text: (no text)") {
		t.Errorf("FormatSummary() = %q, want placeholder text", got)
	}
}
