package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/jarvis/pkg/errorsx"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/redact"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrUnknownContact is returned when a name has no configured number.
var ErrUnknownContact = errors.New("unknown contact")

type Config struct {
	AccountSID string            `mapstructure:"account_sid"`
	AuthToken  string            `mapstructure:"auth_token"`
	FromNumber string            `mapstructure:"from_number"`
	CallURL    string            `mapstructure:"call_url"`
	Contacts   map[string]string `mapstructure:"contacts"`
	Logger     *slog.Logger      `mapstructure:"-"`
}

type creator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Messenger sends WhatsApp messages and places voice calls through the
// Twilio REST API.
type Messenger struct {
	cfg      Config
	contacts map[string]string
	client   creator
	logger   *slog.Logger
}

func New(cfg Config) *Messenger {
	contacts := make(map[string]string, len(cfg.Contacts))
	for name, number := range cfg.Contacts {
		contacts[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(number)
	}
	return &Messenger{cfg: cfg, contacts: contacts, logger: logging.NewComponentLogger(cfg.Logger, "twilio_messenger")}
}

func (m *Messenger) Name() string { return "twilio" }

// Lookup resolves a contact name to its phone number.
func (m *Messenger) Lookup(name string) (string, bool) {
	number, ok := m.contacts[strings.ToLower(strings.TrimSpace(name))]
	return number, ok && number != ""
}

// Contacts returns the configured contact names.
func (m *Messenger) Contacts() []string {
	out := make([]string, 0, len(m.contacts))
	for name := range m.contacts {
		out = append(out, name)
	}
	return out
}

// SendMessage delivers body to a WhatsApp number and returns the message sid.
func (m *Messenger) SendMessage(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if to == "" || strings.TrimSpace(body) == "" {
		return "", errors.New("to/body required")
	}
	client, err := m.rest()
	if err != nil {
		return "", err
	}
	params := &api.CreateMessageParams{}
	params.SetTo(whatsapp(to))
	params.SetFrom(whatsapp(m.cfg.FromNumber))
	params.SetBody(body)
	resp, err := client.CreateMessage(params)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonTransportSend, "create message")
	}
	if resp == nil || resp.Sid == nil {
		return "", errorsx.New(errorsx.ReasonTransportSend, "missing message sid")
	}
	m.logger.Info("whatsapp_message_sent", "to", redact.Text(to), "sid", *resp.Sid)
	return *resp.Sid, nil
}

// Call places a voice call to a number; Twilio fetches TwiML from CallURL.
func (m *Messenger) Call(ctx context.Context, to string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if to == "" {
		return "", errors.New("to required")
	}
	if m.cfg.CallURL == "" {
		return "", errors.New("call url not configured")
	}
	client, err := m.rest()
	if err != nil {
		return "", err
	}
	params := &api.CreateCallParams{}
	params.SetTo(strings.TrimPrefix(to, "whatsapp:"))
	params.SetFrom(strings.TrimPrefix(m.cfg.FromNumber, "whatsapp:"))
	params.SetUrl(m.cfg.CallURL)
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonTransportSend, "create call")
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	m.logger.Info("voice_call_placed", "to", redact.Text(to), "sid", *resp.Sid)
	return *resp.Sid, nil
}

func (m *Messenger) rest() (creator, error) {
	if m.client != nil {
		return m.client, nil
	}
	if m.cfg.AccountSID == "" || m.cfg.AuthToken == "" {
		return nil, errorsx.New(errorsx.ReasonTransportSend, "missing twilio credentials")
	}
	if m.cfg.FromNumber == "" {
		return nil, errorsx.New(errorsx.ReasonTransportSend, "missing twilio from number")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: m.cfg.AccountSID,
		Password: m.cfg.AuthToken,
	})
	m.client = rest.Api
	return m.client, nil
}

func whatsapp(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
