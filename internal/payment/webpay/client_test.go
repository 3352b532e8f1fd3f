package webpay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eventpass/internal/domain/checkout"
)

const orderID = "3f2b8c1e-9a4d-4e7b-8c21-5d6f7a8b9c0d"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		CommerceCode: "597055555532",
		APIKey:       "secret",
	}, srv.Client())
}

func TestClient_Authorize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transactionsPath, r.URL.Path)
		assert.Equal(t, "597055555532", r.Header.Get("Tbk-Api-Key-Id"))
		assert.Equal(t, "secret", r.Header.Get("Tbk-Api-Key-Secret"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		got := map[string]string{}
		var amount int64
		assert.NoError(t, jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
			if key == "amount" {
				v, err := d.Int64()
				amount = v
				return err
			}
			v, err := d.Str()
			got[key] = v
			return err
		}))
		assert.Equal(t, int64(25000), amount)
		assert.Equal(t, "3f2b8c1e9a4d4e7b8c215d6f7a", got["buy_order"])
		assert.Equal(t, orderID, got["session_id"])
		assert.Equal(t, "https://shop.example.com/api/checkout/return", got["return_url"])

		_, _ = w.Write([]byte(`{"token":"01ab","url":"https://webpay3gint.transbank.cl/webpayserver/initTransaction"}`))
	})

	auth, err := c.Authorize(context.Background(), checkout.AuthorizeRequest{
		OrderID:   orderID,
		Amount:    decimal.NewFromInt(25000),
		ReturnURL: "https://shop.example.com/api/checkout/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "01ab", auth.Token)
	assert.Equal(t, "https://webpay3gint.transbank.cl/webpayserver/initTransaction", auth.RedirectURL)
}

func TestClient_AuthorizeRejectsZeroAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	_, err := c.Authorize(context.Background(), checkout.AuthorizeRequest{OrderID: orderID, Amount: decimal.Zero})
	require.Error(t, err)
}

func TestClient_Confirm(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		authorized bool
		amount     int64
		reference  string
	}{
		{
			name:       "authorized",
			body:       `{"vci":"TSY","amount":25000,"status":"AUTHORIZED","buy_order":"x","card_detail":{"card_number":"6623"},"authorization_code":"1213","response_code":0,"installments_number":0}`,
			authorized: true,
			amount:     25000,
			reference:  "1213",
		},
		{
			name:      "rejected by issuer",
			body:      `{"amount":25000,"status":"FAILED","authorization_code":"000000","response_code":-1}`,
			amount:    25000,
			reference: "000000",
		},
		{
			name:   "authorized status with error code",
			body:   `{"amount":25000,"status":"AUTHORIZED","response_code":-3}`,
			amount: 25000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, transactionsPath+"/tok", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			conf, err := c.Confirm(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tt.authorized, conf.Authorized)
			assert.True(t, decimal.NewFromInt(tt.amount).Equal(conf.Amount))
			assert.Equal(t, tt.reference, conf.Reference)
		})
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_message":"Transaction already locked by another process"}`))
	})

	_, err := c.Confirm(context.Background(), "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Transaction already locked by another process", apiErr.Message)
}

func TestBuyOrder(t *testing.T) {
	assert.Len(t, buyOrder(orderID), maxBuyOrderLen)
	assert.Equal(t, "short", buyOrder("short"))
}
