package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goodCard = Card{Number: "4242 4242 4242 4242", ExpMonth: 12, ExpYear: 2030, CVC: "123"}

func TestCard_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		card Card
		ok   bool
	}{
		{name: "ok", card: goodCard, ok: true},
		{name: "short number", card: Card{Number: "4242", ExpMonth: 1, ExpYear: 2030, CVC: "123"}},
		{name: "bad month", card: Card{Number: "4242424242424242", ExpMonth: 13, ExpYear: 2030, CVC: "123"}},
		{name: "no cvc", card: Card{Number: "4242424242424242", ExpMonth: 1, ExpYear: 2030}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.card.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestHTTPProcessor_ConfirmCard(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment_intents/confirm", r.URL.Path)
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))

		var body struct {
			ClientSecret string `json:"clientSecret"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		switch body.ClientSecret {
		case "ok":
			_, _ = w.Write([]byte(`{"id":"pi_1","status":"succeeded"}`))
		case "declined":
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"message":"insufficient funds"}`))
		case "pending":
			_, _ = w.Write([]byte(`{"id":"pi_2","status":"requires_action"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProcessor(srv.URL, "sk")
	ctx := context.Background()

	conf, err := p.ConfirmCard(ctx, "ok", goodCard, Billing{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", conf.TransactionID)

	_, err = p.ConfirmCard(ctx, "declined", goodCard, Billing{})
	assert.ErrorIs(t, err, ErrDeclined)

	_, err = p.ConfirmCard(ctx, "pending", goodCard, Billing{})
	assert.ErrorIs(t, err, ErrDeclined)

	_, err = p.ConfirmCard(ctx, "boom", goodCard, Billing{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeclined)

	_, err = p.ConfirmCard(ctx, "", goodCard, Billing{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSandbox(t *testing.T) {
	t.Parallel()

	conf, err := Sandbox{}.ConfirmCard(context.Background(), "s", goodCard, Billing{})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", conf.Status)
	assert.NotEmpty(t, conf.TransactionID)

	decline := goodCard
	decline.Number = "4000000000000002"
	_, err = Sandbox{}.ConfirmCard(context.Background(), "s", decline, Billing{})
	assert.ErrorIs(t, err, ErrDeclined)
}
