package twilio

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/jarvis/pkg/errorsx"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type stubCreator struct {
	lastMessage *api.CreateMessageParams
	lastCall    *api.CreateCallParams
	sid         string
	err         error
}

func (s *stubCreator) CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	s.lastMessage = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Message{Sid: &s.sid}, nil
}

func (s *stubCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	s.lastCall = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &s.sid}, nil
}

func newTestMessenger(stub *stubCreator) *Messenger {
	m := New(Config{
		FromNumber: "+14155238886",
		CallURL:    "https://example.com/twiml",
		Contacts:   map[string]string{"Mom": "+911234567890"},
	})
	m.client = stub
	return m
}

func TestSendMessageUsesWhatsAppAddresses(t *testing.T) {
	stub := &stubCreator{sid: "SM123"}
	m := newTestMessenger(stub)

	number, ok := m.Lookup("  mom ")
	if !ok {
		t.Fatalf("expected contact lookup to succeed")
	}
	sid, err := m.SendMessage(context.Background(), number, "on my way")
	if err != nil {
		t.Fatalf("send error: %v", err)
	}
	if sid != "SM123" {
		t.Fatalf("expected sid SM123, got %s", sid)
	}
	if stub.lastMessage.To == nil || *stub.lastMessage.To != "whatsapp:+911234567890" {
		t.Fatalf("expected whatsapp To param")
	}
	if stub.lastMessage.From == nil || *stub.lastMessage.From != "whatsapp:+14155238886" {
		t.Fatalf("expected whatsapp From param")
	}
	if stub.lastMessage.Body == nil || *stub.lastMessage.Body != "on my way" {
		t.Fatalf("expected Body param")
	}
}

func TestCallUsesPlainNumbersAndURL(t *testing.T) {
	stub := &stubCreator{sid: "CA1"}
	m := newTestMessenger(stub)

	if _, err := m.Call(context.Background(), "whatsapp:+911234567890"); err != nil {
		t.Fatalf("call error: %v", err)
	}
	if stub.lastCall.To == nil || *stub.lastCall.To != "+911234567890" {
		t.Fatalf("expected plain To param")
	}
	if stub.lastCall.Url == nil || *stub.lastCall.Url != "https://example.com/twiml" {
		t.Fatalf("expected Url param")
	}
}

func TestLookupUnknownContact(t *testing.T) {
	m := newTestMessenger(&stubCreator{})
	if _, ok := m.Lookup("dad"); ok {
		t.Fatalf("expected unknown contact")
	}
}

func TestSendFailureCarriesReason(t *testing.T) {
	m := newTestMessenger(&stubCreator{err: errors.New("21211 invalid number")})
	_, err := m.SendMessage(context.Background(), "+1", "hi")
	if !errorsx.HasReason(err, errorsx.ReasonTransportSend) {
		t.Fatalf("expected transport send reason, got %v", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	m := New(Config{FromNumber: "+1"})
	_, err := m.SendMessage(context.Background(), "+2", "hi")
	if !errorsx.HasReason(err, errorsx.ReasonTransportSend) {
		t.Fatalf("expected transport send reason, got %v", err)
	}
}
