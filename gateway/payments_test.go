package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIBStoreSaveNormalizes(t *testing.T) {
	t.Parallel()

	store := NewFIBStore(filepath.Join(t.TempDir(), "fib.json"))

	saved, err := store.Save(FIBConfig{Accounts: []FIBAccount{
		{ID: "  ", Label: "dropped"},
		{ID: "a1", Label: "First", ClientID: "c1", ClientSecret: "s1", BaseURL: "https://fib.example.com"},
		{ID: "a2", Label: "Second"},
	}})
	require.NoError(t, err)

	require.Len(t, saved.Accounts, 2)
	// Active id was not supplied, so the first account wins
	assert.Equal(t, "a1", saved.ActiveAccountID)

	loaded := store.Load()
	assert.Equal(t, saved.Accounts, loaded.Accounts)
	assert.Equal(t, "a1", loaded.ActiveAccountID)
}

func TestFIBStoreSaveRejectsUnknownActiveID(t *testing.T) {
	t.Parallel()

	store := NewFIBStore(filepath.Join(t.TempDir(), "fib.json"))

	var cfg FIBConfig
	require.NoError(t, json.Unmarshal([]byte(`{
		"accounts": [{"id": "a1"}],
		"active_account_id": "nope"
	}`), &cfg))

	saved, err := store.Save(cfg)
	require.NoError(t, err)
	assert.Equal(t, "", saved.ActiveAccountID)
}

func TestFIBStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := NewFIBStore(filepath.Join(t.TempDir(), "fib.json"))
	cfg := store.Load()
	assert.Empty(t, cfg.Accounts)
	assert.Equal(t, "", cfg.ActiveAccountID)
}

func TestFIBClientCreatePayment(t *testing.T) {
	t.Parallel()

	var gotPayment map[string]any
	fib := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/auth/realms/fib-online-shop/protocol/openid-connect/token":
			require.NoError(t, req.ParseForm())
			assert.Equal(t, "client_credentials", req.Form.Get("grant_type"))
			assert.Equal(t, "c1", req.Form.Get("client_id"))
			_ = json.NewEncoder(rw).Encode(map[string]string{"access_token": "tok-1"})
		case "/protected/v1/payments":
			assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&gotPayment))
			rw.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(rw).Encode(map[string]string{
				"paymentId":       "pay-9",
				"readableCode":    "FIB123",
				"qrCode":          "data:image/png;base64,xyz",
				"validUntil":      "2026-09-01T10:00:00Z",
				"personalAppLink": "https://personal.example.com/pay-9",
			})
		default:
			http.NotFound(rw, req)
		}
	}))
	t.Cleanup(fib.Close)

	store := NewFIBStore(filepath.Join(t.TempDir(), "fib.json"))
	_, err := store.Save(FIBConfig{Accounts: []FIBAccount{
		{ID: "a1", Label: "Main", ClientID: "c1", ClientSecret: "s1", BaseURL: fib.URL},
	}})
	require.NoError(t, err)

	client := NewFIBClient(logger.Discard, env.FromMap(map[string]string{
		"PUBLIC_BASE_URL": "https://book.example.com",
	}), store)

	payment, err := client.CreatePayment(context.Background(), 275500, "Flight EBL-BGW")
	require.NoError(t, err)

	assert.Equal(t, "FIB123", payment.Reference)
	assert.Equal(t, 275500, payment.Amount)
	assert.Equal(t, "IQD", payment.Currency)
	assert.Equal(t, "a1", payment.AccountID)
	assert.Equal(t, "https://personal.example.com/pay-9", payment.PaymentLink)
	assert.Equal(t, "data:image/png;base64,xyz", payment.QRURL)

	monetary := gotPayment["monetaryValue"].(map[string]any)
	assert.Equal(t, "275500", monetary["amount"])
	assert.Equal(t, "IQD", monetary["currency"])
	assert.Equal(t, "https://book.example.com/fib/return", gotPayment["redirectUri"])
	assert.Equal(t, "https://book.example.com/fib/webhook", gotPayment["statusCallbackUrl"])
	assert.Equal(t, "PT1H", gotPayment["expiresIn"])
}

func TestFIBClientEnvFallbackAccount(t *testing.T) {
	t.Parallel()

	client := NewFIBClient(logger.Discard, env.FromMap(map[string]string{
		"FIB_BASE_URL":      "https://fib.example.com",
		"FIB_CLIENT_ID":     "envc",
		"FIB_CLIENT_SECRET": "envs",
	}), NewFIBStore(filepath.Join(t.TempDir(), "fib.json")))

	account, err := client.activeAccount()
	require.NoError(t, err)
	assert.Equal(t, "env", account.ID)
	assert.Equal(t, "envc", account.ClientID)
}

func TestFIBClientNoAccount(t *testing.T) {
	t.Parallel()

	client := NewFIBClient(logger.Discard, env.New(), NewFIBStore(filepath.Join(t.TempDir(), "fib.json")))
	_, err := client.activeAccount()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active FIB account")
}
