package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recovery-sync/internal/classify"
	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/payload"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func fixedClock(n *Normalizer) {
	n.now = func() time.Time { return time.UnixMilli(1700000000000) }
}

const paidSale = `{
	"event": "saleApproved",
	"client": {"name": " Ana ", "email": "ANA@Example.com", "cellphone": "(11) 91234-5678"},
	"sale": {"id": "s-1", "status": "paid", "method": "CREDIT_CARD", "amount": "497,00",
		"seller_balance": 450.5, "created_at": "2025-03-01T10:00:00Z"},
	"product": {"name": "Ingresso  Escala 26"},
	"utms": {"utm_source": "ig", "utm_campaign": " lancamento "}
}`

func TestNormalize_PaidSale(t *testing.T) {
	raw := decode(t, paidSale)
	got := NewNormalizer().Normalize(raw, "escala")

	lead := got.Lead
	assert.Equal(t, "Ana", lead.Name)
	assert.Equal(t, "ana@example.com", lead.Email)
	assert.Equal(t, "escala", lead.Project)
	assert.Equal(t, "+5511912345678", lead.Phone)
	assert.Equal(t, 497.0, lead.Gross)
	assert.Equal(t, 450.5, lead.Net)
	assert.Equal(t, "ingresso-escala-26", lead.Product)
	assert.Equal(t, []string{model.TagBuyer}, lead.ActionTags)
	assert.Equal(t, "s-1", lead.ExternalID)
	assert.Equal(t, "2025-03-01T10:00:00Z", lead.ExternalCreatedAt)
	assert.Equal(t, &model.UTMs{Source: "ig", Campaign: "lancamento"}, lead.UTMs)
	assert.Equal(t, raw, lead.Raw)
	assert.False(t, lead.PlaceholderEmail)
	assert.Equal(t, classify.RulePaid, got.Rule)
	assert.Empty(t, got.Warnings)
}

func TestNormalize_WrappedShapes(t *testing.T) {
	raw := decode(t, `[{"headers": {"x": "1"}, "body": {
		"projeto": "escala-26",
		"client": {"email": "bia@example.com"},
		"sale": {"status": "refunded", "seller_balance": -450},
		"utms": {"utm_source": ""}
	}}]`)
	got := NewNormalizer().Normalize(raw, "")

	assert.Equal(t, "bia@example.com", got.Lead.Email)
	assert.Equal(t, "escala-26", got.Lead.Project)
	assert.Equal(t, []string{model.TagRefund}, got.Lead.ActionTags)
	assert.Equal(t, -450.0, got.Lead.Net)
	assert.Nil(t, got.Lead.UTMs)
	assert.Empty(t, got.Warnings, "refund explains the negative net")

	envelope := got.Lead.Raw.(map[string]any)
	assert.Contains(t, envelope, "headers")
	assert.Contains(t, envelope, "body")
}

func TestNormalize_PathProjectWins(t *testing.T) {
	raw := decode(t, `{"projeto": "from-payload", "email": "a@b.com"}`)
	assert.Equal(t, "from-path", NewNormalizer().Normalize(raw, " from-path ").Lead.Project)
	assert.Equal(t, "from-payload", NewNormalizer().Normalize(raw, "").Lead.Project)
}

func TestNormalize_DefaultProject(t *testing.T) {
	raw := decode(t, `{"email": "a@b.com"}`)

	got := NewNormalizer().Normalize(raw, "")
	assert.Equal(t, model.DefaultProject, got.Lead.Project)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, WarnDefaultProject, got.Warnings[0].Kind)

	got = NewNormalizer(WithDefaultProject("escala")).Normalize(raw, "")
	assert.Equal(t, "escala", got.Lead.Project)
}

func TestNormalize_PlaceholderEmail(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "from phone", raw: `{"projeto": "p", "whatsapp": "11 91234-5678"}`, want: "whatsapp_5511912345678@desconhecido.local"},
		{name: "no phone", raw: `{"projeto": "p", "email": "not-an-email"}`, want: "desconhecido_1700000000000@desconhecido.local"},
		{name: "empty array", raw: `[]`, want: "desconhecido_1700000000000@desconhecido.local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewNormalizer(fixedClock).Normalize(decode(t, tt.raw), "")
			assert.Equal(t, tt.want, got.Lead.Email)
			assert.True(t, got.Lead.PlaceholderEmail)
			assert.NotNil(t, got.Lead.ActionTags)

			var kinds []string
			for _, w := range got.Warnings {
				kinds = append(kinds, w.Kind)
			}
			assert.Contains(t, kinds, WarnPlaceholderEmail)
		})
	}
}

func TestNormalize_Warnings(t *testing.T) {
	got := NewNormalizer().Normalize(decode(t, `{
		"projeto": "p", "email": "a@b.com", "telefone": "123",
		"sale": {"status": "paid", "seller_balance": "-10"}
	}`), "")

	// "-10" coerces to 10, so only the phone is flagged.
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, Warning{Kind: WarnInvalidPhone, Detail: "+55123"}, got.Warnings[0])

	got = NewNormalizer().Normalize(decode(t, `{
		"projeto": "p", "email": "a@b.com",
		"sale": {"status": "paid", "seller_balance": -10}
	}`), "")
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, WarnNegativeNet, got.Warnings[0].Kind)
}

func TestNormalize_Classification(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantTags []string
		wantRule classify.Rule
	}{
		{name: "explicit list", raw: `{"email": "a@b.com", "acao": "pix-gerado, comprador"}`, wantTags: []string{"pix-gerado", "comprador"}, wantRule: classify.RuleExplicit},
		{name: "offer only", raw: `{"email": "a@b.com", "offer": {"amount": 97}}`, wantTags: []string{model.TagAbandonedCart}, wantRule: classify.RuleAbandonedCart},
		{name: "pix", raw: `{"email": "a@b.com", "sale": {"status": "waiting_payment", "method": "PIX"}}`, wantTags: []string{model.TagPixGenerated}, wantRule: classify.RulePixGenerated},
		{name: "declined", raw: `{"email": "a@b.com", "currentStatus": "REFUSED"}`, wantTags: []string{model.TagCardDeclined}, wantRule: classify.RulePaymentFailure},
		{name: "event slug", raw: `{"email": "a@b.com", "event": "SALE_UPDATED"}`, wantTags: []string{model.TagSaleUpdated}, wantRule: classify.RuleEvent},
		{name: "nothing", raw: `{"email": "a@b.com"}`, wantTags: []string{}, wantRule: classify.RuleNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewNormalizer().Normalize(decode(t, tt.raw), "p")
			assert.Equal(t, tt.wantTags, got.Lead.ActionTags)
			assert.Equal(t, tt.wantRule, got.Rule)
		})
	}
}

func TestNormalize_OfferAmountAsGross(t *testing.T) {
	got := NewNormalizer().Normalize(decode(t, `{"email": "a@b.com", "offer": {"amount": 97}}`), "p")
	assert.Equal(t, 97.0, got.Lead.Gross)
}

func TestNormalize_CustomFieldMap(t *testing.T) {
	fm := payload.DefaultFieldMap()
	fm.Email = "contato.email"
	fm.Phone = "contato.fone"

	got := NewNormalizer(WithFieldMap(fm), WithCountryCode("351")).Normalize(decode(t, `{
		"projeto": "p",
		"contato": {"email": "Ze@Example.pt", "fone": "912345678"},
		"email": "ignored@example.com"
	}`), "")
	assert.Equal(t, "ze@example.pt", got.Lead.Email)
	assert.Equal(t, "+351912345678", got.Lead.Phone)
}
