package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/httpserver"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/flock"
)

const (
	esimDefaultBaseURL = "https://www.esimoasis.com/api/v1"
	esimBundlesTTL     = 5 * time.Minute

	// Popular destination lists are capped so a runaway config can't
	// bloat the public settings payload.
	esimMaxPopularDestinations = 16
)

// ESIMAccount is one set of eSIM Oasis API credentials. Tokens pasted as
// a single "keyid:secret" string into either field are split apart.
type ESIMAccount struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	KeyID   string `json:"key_id"`
	Secret  string `json:"secret"`
	BaseURL string `json:"base_url"`
}

func (a ESIMAccount) normalize() ESIMAccount {
	a.ID = strings.TrimSpace(a.ID)
	a.KeyID = strings.TrimSpace(a.KeyID)
	a.Secret = strings.TrimSpace(a.Secret)

	if strings.Contains(a.KeyID, ":") && (a.Secret == "" || a.Secret == a.KeyID) {
		a.KeyID, a.Secret = splitESIMToken(a.KeyID)
	} else if strings.Contains(a.Secret, ":") && (a.KeyID == "" || a.KeyID == a.Secret) {
		a.KeyID, a.Secret = splitESIMToken(a.Secret)
	}
	return a
}

func splitESIMToken(raw string) (keyID, secret string) {
	keyID, secret, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(keyID), strings.TrimSpace(secret)
}

// ESIMDestination is a curated popular destination shown by the shop.
type ESIMDestination struct {
	Name     string `json:"name"`
	ISO      string `json:"iso"`
	Initials string `json:"initials"`
}

// ESIMSettings shape the public catalog: which countries are sold, and
// how USD bundle prices convert to IQD.
type ESIMSettings struct {
	AllowedCountries    []string          `json:"allowed_countries"`
	FXRate              float64           `json:"fx_rate"`
	MarkupPercent       float64           `json:"markup_percent"`
	MarkupFixedIQD      float64           `json:"markup_fixed_iqd"`
	PopularDestinations []ESIMDestination `json:"popular_destinations"`
}

func (s ESIMSettings) normalize() ESIMSettings {
	allowed := make([]string, 0, len(s.AllowedCountries))
	for _, c := range s.AllowedCountries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			allowed = append(allowed, c)
		}
	}
	s.AllowedCountries = allowed

	popular := make([]ESIMDestination, 0, len(s.PopularDestinations))
	for _, d := range s.PopularDestinations {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			continue
		}
		d.ISO = strings.ToUpper(strings.TrimSpace(d.ISO))
		d.Initials = strings.ToUpper(strings.TrimSpace(d.Initials))
		popular = append(popular, d)
		if len(popular) >= esimMaxPopularDestinations {
			break
		}
	}
	s.PopularDestinations = popular
	return s
}

// FXRateChange records one change to the IQD exchange rate.
type FXRateChange struct {
	Rate        float64 `json:"rate"`
	CreatedAt   string  `json:"created_at"`
	CreatedBy   string  `json:"created_by"`
	CreatedByID string  `json:"created_by_id"`
}

// ESIMConfig is the eSIM store: accounts, settings and the exchange-rate
// history.
type ESIMConfig struct {
	Accounts        []ESIMAccount  `json:"accounts"`
	ActiveAccountID string         `json:"active_account_id"`
	Settings        ESIMSettings   `json:"settings"`
	FXHistory       []FXRateChange `json:"fx_history"`

	// FXUpdatedBy and FXUpdatedByID attribute a rate change. They are
	// accepted on save and recorded in the history, never stored.
	FXUpdatedBy   string `json:"fx_updated_by,omitempty"`
	FXUpdatedByID string `json:"fx_updated_by_id,omitempty"`

	// settingsSet distinguishes absent settings (keep the stored ones)
	// from explicitly supplied ones when saving.
	settingsSet bool
	activeSet   bool
}

func (c *ESIMConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Accounts        []ESIMAccount  `json:"accounts"`
		ActiveAccountID *string        `json:"active_account_id"`
		Settings        *ESIMSettings  `json:"settings"`
		FXHistory       []FXRateChange `json:"fx_history"`
		FXUpdatedBy     string         `json:"fx_updated_by"`
		FXUpdatedByID   string         `json:"fx_updated_by_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Accounts = raw.Accounts
	if raw.ActiveAccountID != nil {
		c.ActiveAccountID = *raw.ActiveAccountID
		c.activeSet = true
	}
	if raw.Settings != nil {
		c.Settings = *raw.Settings
		c.settingsSet = true
	}
	c.FXHistory = raw.FXHistory
	c.FXUpdatedBy = raw.FXUpdatedBy
	c.FXUpdatedByID = raw.FXUpdatedByID
	return nil
}

// ESIMStore reads and writes the eSIM config JSON file.
type ESIMStore struct {
	path string
	lock *flock.Flock
}

func NewESIMStore(path string) *ESIMStore {
	return &ESIMStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load returns the stored config, or an empty one.
func (s *ESIMStore) Load() ESIMConfig {
	if err := s.lock.RLock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return emptyESIMConfig()
	}

	var c ESIMConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return emptyESIMConfig()
	}

	accounts := make([]ESIMAccount, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		accounts = append(accounts, a.normalize())
	}
	c.Accounts = accounts
	c.Settings = c.Settings.normalize()
	if c.FXHistory == nil {
		c.FXHistory = []FXRateChange{}
	}
	c.FXUpdatedBy = ""
	c.FXUpdatedByID = ""
	return c
}

func emptyESIMConfig() ESIMConfig {
	return ESIMConfig{
		Accounts:  []ESIMAccount{},
		Settings:  ESIMSettings{}.normalize(),
		FXHistory: []FXRateChange{},
	}
}

// Save normalizes and persists the config. Accounts without an id are
// dropped and the active id must refer to a kept account; an absent
// active id defaults to the first account. Settings left out of the
// payload keep their stored values, and a changed exchange rate is
// appended to the history with the supplied attribution.
func (s *ESIMStore) Save(c ESIMConfig) (ESIMConfig, error) {
	existing := s.Load()

	accounts := make([]ESIMAccount, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		a = a.normalize()
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

	if c.settingsSet {
		c.Settings = c.Settings.normalize()
	} else {
		c.Settings = existing.Settings
	}

	history := existing.FXHistory
	if c.Settings.FXRate != 0 && c.Settings.FXRate != existing.Settings.FXRate {
		history = append(history, FXRateChange{
			Rate:        c.Settings.FXRate,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
			CreatedBy:   strings.TrimSpace(c.FXUpdatedBy),
			CreatedByID: strings.TrimSpace(c.FXUpdatedByID),
		})
	}
	c.FXHistory = history
	c.FXUpdatedBy = ""
	c.FXUpdatedByID = ""

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return c, fmt.Errorf("encoding eSIM config: %w", err)
	}

	if err := s.lock.Lock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return c, fmt.Errorf("creating eSIM config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return c, fmt.Errorf("writing eSIM config: %w", err)
	}
	return c, nil
}

// ESIMClient calls the eSIM Oasis API with the active account's
// credentials.
type ESIMClient struct {
	logger logger.Logger
	env    *env.Environment
	store  *ESIMStore
	client *http.Client

	cacheMu sync.Mutex
	cache   map[string]esimCacheEntry
}

type esimCacheEntry struct {
	at    time.Time
	value map[string]any
}

func NewESIMClient(l logger.Logger, e *env.Environment, store *ESIMStore) *ESIMClient {
	return &ESIMClient{
		logger: l,
		env:    e,
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  map[string]esimCacheEntry{},
	}
}

// activeAccount is the stored active account, or one assembled from
// ESIM_OASIS_KEY_ID/ESIM_OASIS_SECRET/ESIM_OASIS_BASE_URL when none is
// stored.
func (c *ESIMClient) activeAccount() (ESIMAccount, error) {
	cfg := c.store.Load()
	activeID := strings.TrimSpace(cfg.ActiveAccountID)

	var account *ESIMAccount
	for i := range cfg.Accounts {
		if cfg.Accounts[i].ID == activeID && activeID != "" {
			account = &cfg.Accounts[i]
			break
		}
	}

	if account == nil {
		keyID := c.env.GetOrDefault("ESIM_OASIS_KEY_ID", "")
		secret := c.env.GetOrDefault("ESIM_OASIS_SECRET", "")
		if keyID != "" && secret != "" {
			account = &ESIMAccount{
				ID:      "env",
				Label:   "ENV",
				KeyID:   keyID,
				Secret:  secret,
				BaseURL: c.env.GetOrDefault("ESIM_OASIS_BASE_URL", esimDefaultBaseURL),
			}
		}
	}

	if account == nil {
		return ESIMAccount{}, errors.New("no active eSIM Oasis account configured")
	}

	a := account.normalize()
	if a.KeyID == "" || a.Secret == "" {
		return ESIMAccount{}, errors.New("eSIM Oasis credentials are missing")
	}
	return a, nil
}

// do performs an authenticated request. Replies that aren't JSON objects
// come back wrapped as {"raw": body}.
func (c *ESIMClient) do(ctx context.Context, method, path string, params url.Values, payload any, idempotencyKey string) (map[string]any, error) {
	account, err := c.activeAccount()
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(account.BaseURL)
	if base == "" {
		base = esimDefaultBaseURL
	}
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding eSIM payload: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+account.KeyID+":"+account.Secret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting eSIM Oasis %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("eSIM Oasis request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var data map[string]any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return map[string]any{"raw": string(respBody)}, nil
	}
	return data, nil
}

func (c *ESIMClient) Ping(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil, "")
}

func (c *ESIMClient) Bundles(ctx context.Context, params url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/catalog", params, nil, "")
}

func (c *ESIMClient) Quote(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "/quote", nil, payload, "")
}

func (c *ESIMClient) CreateOrder(ctx context.Context, payload map[string]any, idempotencyKey string) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, "/orders", nil, payload, idempotencyKey)
}

func (c *ESIMClient) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil, "")
}

func (c *ESIMClient) ListOrders(ctx context.Context, params url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/orders", params, nil, "")
}

func (c *ESIMClient) Balance(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/balance", nil, nil, "")
}

// esimBundlesCacheKey identifies a catalog response by its query and the
// settings that shaped it; a settings change invalidates naturally.
func esimBundlesCacheKey(params url.Values, st ESIMSettings) string {
	key := struct {
		Params         url.Values `json:"params"`
		Allowed        []string   `json:"allowed"`
		FXRate         float64    `json:"fx_rate"`
		MarkupPercent  float64    `json:"markup_percent"`
		MarkupFixedIQD float64    `json:"markup_fixed_iqd"`
	}{params, st.AllowedCountries, st.FXRate, st.MarkupPercent, st.MarkupFixedIQD}

	data, err := json.Marshal(key)
	if err != nil {
		return params.Encode()
	}
	return string(data)
}

func (c *ESIMClient) cachedBundles(key string) (map[string]any, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	entry, ok := c.cache[key]
	if !ok || time.Since(entry.at) > esimBundlesTTL {
		delete(c.cache, key)
		return nil, false
	}
	return entry.value, true
}

func (c *ESIMClient) storeBundles(key string, value map[string]any) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = esimCacheEntry{at: time.Now(), value: value}
}

// esimFilterCountries keeps only the item's countries whose ISO code is
// in the allowed list. An empty allowed list keeps everything; an item
// left with no countries is excluded entirely.
func esimFilterCountries(item map[string]any, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	countries, _ := item["countries"].([]any)
	filtered := make([]any, 0, len(countries))
	for _, raw := range countries {
		country, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		iso := strings.ToUpper(strings.TrimSpace(esimString(country["iso"])))
		if iso == "" {
			continue
		}
		for _, a := range allowed {
			if iso == a {
				filtered = append(filtered, country)
				break
			}
		}
	}
	if len(filtered) == 0 {
		return false
	}
	item["countries"] = filtered
	return true
}

// esimApplyPricing converts the item's USD minor price to IQD using the
// configured rate and markups. Items without a price, or when no rate is
// set, pass through untouched.
func esimApplyPricing(item map[string]any, st ESIMSettings) {
	price, ok := item["price"].(map[string]any)
	if !ok {
		return
	}
	usdMinor, ok := esimNumber(price["finalMinor"])
	if !ok || st.FXRate <= 0 {
		return
	}

	iqd := esimConvertIQD(usdMinor, st)
	price["finalMinor"] = iqd
	price["currency"] = "IQD"
	item["price"] = price
	item["price_usd_minor"] = int(usdMinor)
	item["fx_rate"] = st.FXRate
	item["markup_percent"] = st.MarkupPercent
	item["markup_fixed_iqd"] = st.MarkupFixedIQD
}

func esimConvertIQD(usdMinor float64, st ESIMSettings) int {
	iqd := (usdMinor / 100.0) * st.FXRate
	if st.MarkupPercent != 0 {
		iqd *= 1 + st.MarkupPercent/100.0
	}
	iqd += st.MarkupFixedIQD
	return int(math.Round(iqd))
}

func esimNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func esimString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func (s *Server) handleESIMConfigGet(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, s.esim.store.Load())
}

func (s *Server) handleESIMConfigSet(w http.ResponseWriter, r *http.Request) {
	var c ESIMConfig
	if err := httpserver.ReadJSON(r, &c); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	saved, err := s.esim.store.Save(c)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) handleESIMPing(w http.ResponseWriter, r *http.Request) {
	data, err := s.esim.Ping(r.Context())
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, data)
}

// handleESIMSettings is the public subset of the settings: what the shop
// sells and at which rate, without accounts or history.
func (s *Server) handleESIMSettings(w http.ResponseWriter, _ *http.Request) {
	st := s.esim.store.Load().Settings
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"allowed_countries":    st.AllowedCountries,
		"fx_rate":              st.FXRate,
		"markup_percent":       st.MarkupPercent,
		"markup_fixed_iqd":     st.MarkupFixedIQD,
		"popular_destinations": st.PopularDestinations,
	})
}

func (s *Server) handleESIMBundles(w http.ResponseWriter, r *http.Request) {
	st := s.esim.store.Load().Settings
	params := r.URL.Query()

	key := esimBundlesCacheKey(params, st)
	if cached, ok := s.esim.cachedBundles(key); ok {
		httpserver.WriteJSON(w, http.StatusOK, cached)
		return
	}

	data, err := s.esim.Bundles(r.Context(), params)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	items, _ := data["items"].([]any)
	if items == nil {
		items, _ = data["bundles"].([]any)
	}
	out := make([]any, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if !esimFilterCountries(item, st.AllowedCountries) {
			continue
		}
		esimApplyPricing(item, st)
		out = append(out, item)
	}
	data["items"] = out
	if _, ok := data["bundles"]; ok {
		data["bundles"] = out
	}

	s.esim.storeBundles(key, data)
	httpserver.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) handleESIMQuote(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := httpserver.ReadJSON(r, &payload); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}

	data, err := s.esim.Quote(r.Context(), payload)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	st := s.esim.store.Load().Settings
	if !esimFilterCountries(data, st.AllowedCountries) {
		httpserver.WriteError(w, errors.New("Bundle not available for allowed countries."), http.StatusForbidden)
		return
	}
	esimApplyPricing(data, st)
	httpserver.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) handleESIMOrderCreate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := httpserver.ReadJSON(r, &payload); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}

	// Accept the snake_case spelling of the idempotency key too.
	if _, ok := payload["idempotencyKey"]; !ok {
		if v, ok := payload["idempotency_key"]; ok {
			payload["idempotencyKey"] = v
			delete(payload, "idempotency_key")
		}
	}
	idempotencyKey := strings.TrimSpace(esimString(payload["idempotencyKey"]))

	data, err := s.esim.CreateOrder(r.Context(), payload, idempotencyKey)
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) handleESIMOrdersList(w http.ResponseWriter, r *http.Request) {
	data, err := s.esim.ListOrders(r.Context(), r.URL.Query())
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	st := s.esim.store.Load().Settings
	if st.FXRate > 0 {
		items, _ := data["items"].([]any)
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if usdMinor, ok := esimNumber(item["totalMinor"]); ok {
				item["total_iqd"] = esimConvertIQD(usdMinor, st)
			}
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) handleESIMOrderGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.esim.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	st := s.esim.store.Load().Settings
	if st.FXRate > 0 {
		if usdMinor, ok := esimNumber(data["totalMinor"]); ok {
			data["total_iqd"] = esimConvertIQD(usdMinor, st)
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, data)
}

func (s *Server) handleESIMBalance(w http.ResponseWriter, r *http.Request) {
	data, err := s.esim.Balance(r.Context())
	if err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, data)
}
