package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mail-relay-bot/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidEnvelope is returned by Decode for payloads that do not carry a mail.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// legacyDateLayout is the naive timestamp older publishers wrote.
const legacyDateLayout = "2006-01-02 15:04:05"

// Envelope is the wire form of a mail on the relay channel.
type Envelope struct {
	Sender     string   `json:"sender"`
	Subject    string   `json:"subject"`
	Date       string   `json:"date"`
	Attachment []string `json:"attachment"`
	Text       *string  `json:"text"`
	HTML       *string  `json:"html"`
	TraceID    string   `json:"trace_id,omitempty"`
}

const envelopeSchemaJSON = `{
  "type": "object",
  "required": ["sender", "subject", "date"],
  "properties": {
    "sender": {"type": "string", "minLength": 1},
    "subject": {"type": "string"},
    "date": {"type": "string", "minLength": 1},
    "attachment": {"type": ["array", "null"], "items": {"type": "string"}},
    "text": {"type": ["string", "null"]},
    "html": {"type": ["string", "null"]},
    "trace_id": {"type": "string"}
  }
}`

var envelopeSchema = compileEnvelopeSchema()

func compileEnvelopeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaJSON))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.json", doc); err != nil {
		panic(err)
	}
	return c.MustCompile("envelope.json")
}

// Encode serializes mail into an envelope payload
func Encode(mail *models.Mail) ([]byte, error) {
	if mail == nil {
		return nil, fmt.Errorf("%w: nil mail", ErrInvalidEnvelope)
	}
	attachments := mail.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	env := Envelope{
		Sender:     mail.Sender,
		Subject:    mail.Subject,
		Date:       mail.Date.UTC().Format(time.RFC3339),
		Attachment: attachments,
		Text:       optional(mail.Text),
		HTML:       optional(mail.HTML),
		TraceID:    mail.TraceID,
	}
	return json.Marshal(env)
}

// Decode validates payload against the envelope schema and converts it back to a mail
func Decode(payload []byte) (*models.Mail, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEnvelope)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := envelopeSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	date, err := parseDate(env.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date: %v", ErrInvalidEnvelope, err)
	}

	attachments := env.Attachment
	if attachments == nil {
		attachments = []string{}
	}
	return &models.Mail{
		Sender:      env.Sender,
		Subject:     env.Subject,
		Date:        date,
		Text:        deref(env.Text),
		HTML:        deref(env.HTML),
		Attachments: attachments,
		TraceID:     env.TraceID,
	}, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(legacyDateLayout, value, time.UTC)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
