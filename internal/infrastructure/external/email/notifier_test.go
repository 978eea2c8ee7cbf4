package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

type fakeSender struct {
	messages []*gomail.Message
	err      error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, m...)
	return nil
}

func newTestNotifier(t *testing.T, sender Sender) *Notifier {
	n, err := NewNotifierWithSender(sender, "vms@corp.example", zap.NewNop())
	require.NoError(t, err)
	return n
}

func TestEveryTemplateKindRenders(t *testing.T) {
	n := newTestNotifier(t, &fakeSender{})
	kinds := []string{
		entity.TemplateRegistered, entity.TemplateSubmitted, entity.TemplateResubmitted,
		entity.TemplateSentBack, entity.TemplateVerified, entity.TemplateApproved,
		entity.TemplateRejected, entity.TemplateBlocked, entity.TemplateSuspended,
		entity.TemplateActivated, entity.TemplateReinitiated,
	}
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			subject, body, err := n.Render(&entity.Notification{Template: kind})
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.NotEmpty(t, body)
			assert.NotContains(t, body, "<no value>")
		})
	}
}

func TestRender_ApprovedCarriesVendorCode(t *testing.T) {
	n := newTestNotifier(t, &fakeSender{})
	subject, body, err := n.Render(&entity.Notification{
		Template: entity.TemplateApproved,
		Variables: map[string]string{
			"reference_id": "RFI-VEN-00007",
			"vendor_name":  "Acme Supplies",
			"vendor_code":  "VNDR/KA/25-26/0001",
			"expiry_date":  "2026-03-31",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Vendor registration approved: VNDR/KA/25-26/0001", subject)
	assert.Contains(t, body, "VNDR/KA/25-26/0001")
	assert.Contains(t, body, "2026-03-31")
}

func TestRender_SentBackListsComments(t *testing.T) {
	n := newTestNotifier(t, &fakeSender{})
	_, body, err := n.Render(&entity.Notification{
		Template:  entity.TemplateSentBack,
		Variables: map[string]string{"reference_id": "RFI-VEN-00007", "comments": "KYC:\n- PAN copy unreadable"},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Reviewer comments")
	assert.Contains(t, body, "- PAN copy unreadable")

	_, body, err = n.Render(&entity.Notification{Template: entity.TemplateSentBack})
	require.NoError(t, err)
	assert.NotContains(t, body, "Reviewer comments")
}

func TestRender_UnknownTemplate(t *testing.T) {
	n := newTestNotifier(t, &fakeSender{})
	_, _, err := n.Render(&entity.Notification{Template: "nope"})
	assert.Error(t, err)
}

func TestSend(t *testing.T) {
	sender := &fakeSender{}
	n := newTestNotifier(t, sender)

	err := n.Send(context.Background(), &entity.Notification{
		ID:         1,
		Template:   entity.TemplateBlocked,
		Recipients: []string{"ops@acme.example", "vms@corp.example"},
		Variables:  map[string]string{"vendor_code": "VNDR/KA/25-26/0001"},
	})
	require.NoError(t, err)
	require.Len(t, sender.messages, 1)

	msg := sender.messages[0]
	assert.Equal(t, []string{"vms@corp.example"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"ops@acme.example", "vms@corp.example"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Vendor VNDR/KA/25-26/0001 blocked"}, msg.GetHeader("Subject"))
}

func TestSend_Failures(t *testing.T) {
	smtpDown := errors.New("dial tcp: connection refused")
	n := newTestNotifier(t, &fakeSender{err: smtpDown})

	err := n.Send(context.Background(), &entity.Notification{Template: entity.TemplateBlocked})
	assert.ErrorIs(t, err, ErrNoRecipients)

	err = n.Send(context.Background(), &entity.Notification{
		Template:   entity.TemplateBlocked,
		Recipients: []string{"ops@acme.example"},
	})
	assert.ErrorIs(t, err, smtpDown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = n.Send(ctx, &entity.Notification{Template: entity.TemplateBlocked, Recipients: []string{"ops@acme.example"}})
	assert.ErrorIs(t, err, context.Canceled)
}
