package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/httpserver"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/gofrs/flock"
)

// FIBAccount is one set of FIB merchant credentials.
type FIBAccount struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	BaseURL      string `json:"base_url"`
}

// FIBConfig is the payments account store: a list of accounts and which
// one is active.
type FIBConfig struct {
	Accounts        []FIBAccount `json:"accounts"`
	ActiveAccountID string       `json:"active_account_id"`

	// activeSet distinguishes an explicit empty active id from an
	// absent one when saving.
	activeSet bool
}

func (c *FIBConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Accounts        []FIBAccount `json:"accounts"`
		ActiveAccountID *string      `json:"active_account_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Accounts = raw.Accounts
	if raw.ActiveAccountID != nil {
		c.ActiveAccountID = *raw.ActiveAccountID
		c.activeSet = true
	}
	return nil
}

// FIBStore reads and writes the FIB accounts JSON file.
type FIBStore struct {
	path string
	lock *flock.Flock
}

func NewFIBStore(path string) *FIBStore {
	return &FIBStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load returns the stored config, or an empty one.
func (s *FIBStore) Load() FIBConfig {
	if err := s.lock.RLock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return FIBConfig{Accounts: []FIBAccount{}}
	}

	var c FIBConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return FIBConfig{Accounts: []FIBAccount{}}
	}
	if c.Accounts == nil {
		c.Accounts = []FIBAccount{}
	}
	return c
}

// Save normalizes and persists the config: accounts without an id are
// dropped, and the active id must refer to a kept account. An absent
// active id defaults to the first account.
func (s *FIBStore) Save(c FIBConfig) (FIBConfig, error) {
	accounts := make([]FIBAccount, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			continue
		}
		accounts = append(accounts, a)
	}
	c.Accounts = accounts

	if !c.activeSet {
		c.ActiveAccountID = ""
		if len(accounts) > 0 {
			c.ActiveAccountID = accounts[0].ID
		}
	} else {
		c.ActiveAccountID = strings.TrimSpace(c.ActiveAccountID)
		if c.ActiveAccountID != "" {
			found := false
			for _, a := range accounts {
				if a.ID == c.ActiveAccountID {
					found = true
					break
				}
			}
			if !found {
				c.ActiveAccountID = ""
			}
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return c, fmt.Errorf("encoding FIB config: %w", err)
	}

	if err := s.lock.Lock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return c, fmt.Errorf("creating FIB config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return c, fmt.Errorf("writing FIB config: %w", err)
	}
	return c, nil
}

// FIBClient creates payments against the FIB online payment API using
// the active account's client-credentials grant.
type FIBClient struct {
	logger logger.Logger
	env    *env.Environment
	store  *FIBStore
	client *http.Client
}

func NewFIBClient(l logger.Logger, e *env.Environment, store *FIBStore) *FIBClient {
	return &FIBClient{
		logger: l,
		env:    e,
		store:  store,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// activeAccount is the stored active account, or one assembled from
// FIB_BASE_URL/FIB_CLIENT_ID/FIB_CLIENT_SECRET when none is stored.
func (c *FIBClient) activeAccount() (FIBAccount, error) {
	cfg := c.store.Load()
	for _, a := range cfg.Accounts {
		if a.ID == strings.TrimSpace(cfg.ActiveAccountID) && a.ID != "" {
			if a.ClientID == "" || a.ClientSecret == "" {
				return FIBAccount{}, errors.New("FIB credentials are missing")
			}
			return a, nil
		}
	}

	base := c.env.GetOrDefault("FIB_BASE_URL", "")
	clientID := c.env.GetOrDefault("FIB_CLIENT_ID", "")
	clientSecret := c.env.GetOrDefault("FIB_CLIENT_SECRET", "")
	if base != "" && clientID != "" && clientSecret != "" {
		return FIBAccount{
			ID:           "env",
			Label:        "ENV",
			ClientID:     clientID,
			ClientSecret: clientSecret,
			BaseURL:      base,
		}, nil
	}

	return FIBAccount{}, errors.New("no active FIB account configured")
}

func (c *FIBClient) accessToken(ctx context.Context, account FIBAccount) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(account.BaseURL), "/")
	if base == "" {
		return "", errors.New("FIB base URL is missing")
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {account.ClientID},
		"client_secret": {account.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/auth/realms/fib-online-shop/protocol/openid-connect/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting FIB token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decoding FIB token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("missing access_token in FIB response")
	}
	return payload.AccessToken, nil
}

// Payment is a created FIB payment.
type Payment struct {
	Reference    string            `json:"reference"`
	Amount       int               `json:"amount"`
	Currency     string            `json:"currency"`
	Description  string            `json:"description"`
	AccountID    string            `json:"account_id"`
	AccountLabel string            `json:"account_label"`
	PaymentLink  string            `json:"payment_link"`
	QRURL        string            `json:"qr_url"`
	ReadableCode string            `json:"readable_code"`
	PaymentID    string            `json:"payment_id"`
	ValidUntil   string            `json:"valid_until"`
	Links        map[string]string `json:"links"`
}

// CreatePayment creates an IQD payment and returns its reference, app
// links and QR code.
func (c *FIBClient) CreatePayment(ctx context.Context, amountIQD int, description string) (*Payment, error) {
	account, err := c.activeAccount()
	if err != nil {
		return nil, err
	}
	token, err := c.accessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	publicBase := strings.TrimRight(c.env.GetOrDefault("PUBLIC_BASE_URL", "http://127.0.0.1:8000"), "/")
	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = "Payment"
	}

	payload := map[string]any{
		"monetaryValue": map[string]string{
			"amount":   strconv.Itoa(amountIQD),
			"currency": "IQD",
		},
		"statusCallbackUrl": publicBase + "/fib/webhook",
		"description":       desc,
		"redirectUri":       publicBase + "/fib/return",
		"expiresIn":         "PT1H",
		"category":          "ECOMMERCE",
		"refundableFor":     "PT48H",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding FIB payment payload: %w", err)
	}

	base := strings.TrimRight(strings.TrimSpace(account.BaseURL), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/protected/v1/payments", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting FIB payment: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var data struct {
		PaymentID        string `json:"paymentId"`
		ReadableCode     string `json:"readableCode"`
		QRCode           string `json:"qrCode"`
		ValidUntil       string `json:"validUntil"`
		PersonalAppLink  string `json:"personalAppLink"`
		BusinessAppLink  string `json:"businessAppLink"`
		CorporateAppLink string `json:"corporateAppLink"`
	}
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("decoding FIB payment response: %w", err)
	}

	ref := data.ReadableCode
	if ref == "" {
		ref = data.PaymentID
	}
	if ref == "" {
		ref = fmt.Sprintf("FIB-%d", time.Now().Unix())
	}

	link := data.PersonalAppLink
	if link == "" {
		link = data.BusinessAppLink
	}
	if link == "" {
		link = data.CorporateAppLink
	}

	return &Payment{
		Reference:    ref,
		Amount:       amountIQD,
		Currency:     "IQD",
		Description:  desc,
		AccountID:    account.ID,
		AccountLabel: account.Label,
		PaymentLink:  link,
		QRURL:        data.QRCode,
		ReadableCode: data.ReadableCode,
		PaymentID:    data.PaymentID,
		ValidUntil:   data.ValidUntil,
		Links: map[string]string{
			"personal":  data.PersonalAppLink,
			"business":  data.BusinessAppLink,
			"corporate": data.CorporateAppLink,
		},
	}, nil
}

func (s *Server) handleFIBConfigGet(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, s.payments.store.Load())
}

func (s *Server) handleFIBConfigSet(w http.ResponseWriter, r *http.Request) {
	var c FIBConfig
	if err := httpserver.ReadJSON(r, &c); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	saved, err := s.payments.store.Save(c)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) handleFIBCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      int    `json:"amount"`
		Description string `json:"description"`
	}
	if err := httpserver.ReadJSON(r, &req); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		httpserver.WriteError(w, errors.New("amount must be greater than 0"), http.StatusBadRequest)
		return
	}

	payment, err := s.payments.CreatePayment(r.Context(), req.Amount, req.Description)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, payment)
}
