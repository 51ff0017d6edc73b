package paypal

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("paypal config invalid")
	ErrInputInvalid    = errors.New("paypal payout input invalid")
	ErrAuthFailed      = errors.New("paypal auth failed")
	ErrRequestFailed   = errors.New("paypal request failed")
	ErrResponseInvalid = errors.New("paypal response invalid")
	ErrPayoutRejected  = errors.New("paypal payout rejected")
)

const (
	ModeSandbox = "sandbox"
	ModeLive    = "live"

	defaultSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	defaultLiveBaseURL    = "https://api-m.paypal.com"
	defaultTimeout        = 12 * time.Second

	simulatedPrefix = "SIM-"
)

// Config PayPal Payouts 配置。
type Config struct {
	Mode            string
	ClientID        string
	ClientSecret    string
	BaseURL         string
	Timeout         time.Duration
	AllowSimulation bool
}

// PayoutInput 单笔付款输入，SenderBatchID 作为幂等键。
type PayoutInput struct {
	SenderBatchID string
	SenderItemID  string
	Receiver      string
	Amount        string
	Currency      string
	Note          string
	EmailSubject  string
}

// PayoutResult 付款提交结果。
type PayoutResult struct {
	BatchID     string
	BatchStatus string
	Simulated   bool
	Raw         map[string]interface{}
}

// PayoutItemStatus 批次内单项状态。
type PayoutItemStatus struct {
	PayoutItemID      string `json:"payout_item_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	SenderItemID      string `json:"sender_item_id"`
	Receiver          string `json:"receiver"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	ErrorName         string `json:"error_name,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// PayoutStatus 批次查询结果。
type PayoutStatus struct {
	BatchID     string             `json:"batch_id"`
	BatchStatus string             `json:"batch_status"`
	Simulated   bool               `json:"simulated"`
	Items       []PayoutItemStatus `json:"items"`
}

// Client PayPal Payouts 客户端。
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 创建客户端。
func NewClient(cfg Config) *Client {
	cfg.normalize()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient 替换 HTTP 客户端。
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// Mode 返回运行模式。
func (c *Client) Mode() string {
	return c.cfg.Mode
}

// Configured 是否配置了凭据。
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// SimulationAllowed 未配置凭据时是否允许返回模拟结果，live 模式永不允许。
func (c *Client) SimulationAllowed() bool {
	return c.cfg.AllowSimulation && c.cfg.Mode != ModeLive
}

// Ready 当前配置能否处理付款（真实或模拟）。
func (c *Client) Ready() error {
	if c.Configured() {
		if _, err := url.ParseRequestURI(c.cfg.BaseURL); err != nil {
			return fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
		}
		return nil
	}
	if c.SimulationAllowed() {
		return nil
	}
	return fmt.Errorf("%w: client_id and client_secret are required in %s mode", ErrConfigInvalid, c.cfg.Mode)
}

// SendPayout 提交单笔付款。
func (c *Client) SendPayout(ctx context.Context, input PayoutInput) (*PayoutResult, error) {
	if err := validatePayoutInput(input); err != nil {
		return nil, err
	}
	if err := c.Ready(); err != nil {
		return nil, err
	}
	if !c.Configured() {
		return simulatePayout(input), nil
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": strings.TrimSpace(input.SenderBatchID),
			"email_subject":   strings.TrimSpace(input.EmailSubject),
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"amount": map[string]string{
					"value":    strings.TrimSpace(input.Amount),
					"currency": strings.ToUpper(strings.TrimSpace(input.Currency)),
				},
				"note":           strings.TrimSpace(input.Note),
				"sender_item_id": strings.TrimSpace(input.SenderItemID),
				"receiver":       strings.TrimSpace(input.Receiver),
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
	}

	respBody, statusCode, err := c.doJSONRequest(ctx, http.MethodPost, "/v1/payments/payouts", token, body)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
		}
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d %s %s", ErrPayoutRejected, statusCode,
			readString(raw, "name"), readString(raw, "message"))
	}

	result := &PayoutResult{
		BatchID:     strings.TrimSpace(readString(raw, "batch_header", "payout_batch_id")),
		BatchStatus: strings.ToUpper(strings.TrimSpace(readString(raw, "batch_header", "batch_status"))),
		Raw:         raw,
	}
	if result.BatchID == "" {
		return nil, fmt.Errorf("%w: missing payout_batch_id", ErrResponseInvalid)
	}
	if result.BatchStatus == "DENIED" || result.BatchStatus == "CANCELED" {
		return result, fmt.Errorf("%w: batch status %s", ErrPayoutRejected, result.BatchStatus)
	}
	return result, nil
}

// GetPayoutStatus 查询付款批次状态。
func (c *Client) GetPayoutStatus(ctx context.Context, batchID string) (*PayoutStatus, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrInputInvalid)
	}
	if strings.HasPrefix(batchID, simulatedPrefix) {
		return &PayoutStatus{BatchID: batchID, BatchStatus: "SUCCESS", Simulated: true}, nil
	}
	if !c.Configured() {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", ErrConfigInvalid)
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	respBody, statusCode, err := c.doJSONRequest(ctx, http.MethodGet, "/v1/payments/payouts/"+url.PathEscape(batchID), token, nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: payout status %d", ErrResponseInvalid, statusCode)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}

	status := &PayoutStatus{
		BatchID:     strings.TrimSpace(readString(raw, "batch_header", "payout_batch_id")),
		BatchStatus: strings.ToUpper(strings.TrimSpace(readString(raw, "batch_header", "batch_status"))),
	}
	for _, item := range readArray(raw, "items") {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		status.Items = append(status.Items, PayoutItemStatus{
			PayoutItemID:      readString(itemMap, "payout_item_id"),
			TransactionID:     readString(itemMap, "transaction_id"),
			TransactionStatus: strings.ToUpper(readString(itemMap, "transaction_status")),
			SenderItemID:      readString(itemMap, "payout_item", "sender_item_id"),
			Receiver:          readString(itemMap, "payout_item", "receiver"),
			Amount:            readString(itemMap, "payout_item", "amount", "value"),
			Currency:          readString(itemMap, "payout_item", "amount", "currency"),
			ErrorName:         readString(itemMap, "errors", "name"),
			ErrorMessage:      readString(itemMap, "errors", "message"),
		})
	}
	if status.BatchID == "" {
		status.BatchID = batchID
	}
	return status, nil
}

func validatePayoutInput(input PayoutInput) error {
	if strings.TrimSpace(input.SenderBatchID) == "" {
		return fmt.Errorf("%w: sender_batch_id is required", ErrInputInvalid)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.Receiver)); err != nil {
		return fmt.Errorf("%w: receiver is not a valid email", ErrInputInvalid)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(input.Amount), 64)
	if err != nil || amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInputInvalid)
	}
	if len(strings.TrimSpace(input.Currency)) != 3 {
		return fmt.Errorf("%w: currency is invalid", ErrInputInvalid)
	}
	return nil
}

// simulatePayout 未配置凭据时的确定性模拟结果，相同输入得到相同批次号。
// SenderBatchID 参与摘要，不同结算单即使金额相同也得到不同批次号。
func simulatePayout(input PayoutInput) *PayoutResult {
	digest := sha1.Sum([]byte(strings.Join([]string{
		strings.TrimSpace(input.SenderBatchID),
		strings.TrimSpace(input.SenderItemID),
		strings.TrimSpace(input.Amount),
		strings.ToUpper(strings.TrimSpace(input.Currency)),
		strings.TrimSpace(input.Note),
	}, "|")))
	return &PayoutResult{
		BatchID:     simulatedPrefix + "BATCH-" + strings.ToUpper(hex.EncodeToString(digest[:])[:16]),
		BatchStatus: "SUCCESS",
		Simulated:   true,
	}
}

func (c *Config) normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode != ModeLive {
		c.Mode = ModeSandbox
	}
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultSandboxBaseURL
		if c.Mode == ModeLive {
			c.BaseURL = defaultLiveBaseURL
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request failed", ErrAuthFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request token failed: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read token response failed", ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode token response failed", ErrAuthFailed)
	}
	token := strings.TrimSpace(readString(parsed, "access_token"))
	if token == "" {
		return "", fmt.Errorf("%w: access_token is empty", ErrAuthFailed)
	}
	return token, nil
}

func (c *Client) doJSONRequest(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func readString(raw map[string]interface{}, path ...string) string {
	current, ok := walk(raw, path...)
	if !ok || current == nil {
		return ""
	}
	if str, ok := current.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", current)
}

func readArray(raw map[string]interface{}, path ...string) []interface{} {
	current, ok := walk(raw, path...)
	if !ok {
		return nil
	}
	arr, _ := current.([]interface{})
	return arr
}

func walk(raw map[string]interface{}, path ...string) (interface{}, bool) {
	if raw == nil {
		return nil, false
	}
	var current interface{} = raw
	for _, seg := range path {
		if idx, err := strconv.Atoi(seg); err == nil {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
			continue
		}
		next, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next[seg]
	}
	return current, true
}
