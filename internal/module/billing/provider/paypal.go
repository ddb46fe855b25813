package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/paypal"
	"github.com/go-pay/gopay/pkg/xhttp"
	"github.com/google/uuid"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

const (
	// PayPalSandboxURL is the PayPal REST sandbox.
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"
	// PayPalLiveURL is the PayPal REST production endpoint.
	PayPalLiveURL = "https://api-m.paypal.com"

	maxCancelReasonLen = 128
	defaultCancelNote  = "Cancelled by subscriber"

	// tokenRefreshMargin renews the access token shortly before PayPal expires it.
	tokenRefreshMargin = time.Minute
)

// gopay reads custom headers from the request context by their plain header name.
const headerRequestID = "PayPal-Request-Id"

// PayPal signature headers required for webhook verification.
const (
	headerAuthAlgo         = "PAYPAL-AUTH-ALGO"
	headerCertURL          = "PAYPAL-CERT-URL"
	headerTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	headerTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	headerTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
)

// Issues PayPal reports when the subscriber's funding source was refused.
var paypalDeclineIssues = map[string]bool{
	"INSTRUMENT_DECLINED":  true,
	"PAYMENT_DENIED":       true,
	"TRANSACTION_REFUSED":  true,
	"PAYER_CANNOT_PAY":     true,
	"PAYER_ACCOUNT_LOCKED": true,
}

// PayPalConfig configures the PayPal gateway.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	WebhookID    string
	// HTTPClient is the transport used for token and API calls. Defaults to a 30s client.
	HTTPClient *http.Client
}

// PayPalGateway talks to the PayPal Subscriptions REST API through the gopay client.
type PayPalGateway struct {
	cfg PayPalConfig
	hc  *xhttp.Client

	// mu guards the client and its access token. API calls hold the read lock
	// so a refresh never rewrites the token mid-request.
	mu        sync.RWMutex
	client    *paypal.Client
	expiresAt time.Time
	now       func() time.Time
}

// NewPayPalGateway creates a PayPal gateway. The gopay client is created on first
// use, so a missing or unreachable PayPal does not block startup.
func NewPayPalGateway(cfg PayPalConfig) *PayPalGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = PayPalSandboxURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	hc := xhttp.NewClient()
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		hc.HttpClient = &c
	} else {
		hc.SetTimeout(30 * time.Second)
		hc.SetHttpTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	next := hc.HttpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.SetTransport(&capturingTransport{next: next})

	return &PayPalGateway{cfg: cfg, hc: hc, now: time.Now}
}

// Name returns the provider name.
func (g *PayPalGateway) Name() string {
	return "paypal"
}

// acquire returns a client with a live access token. The caller must call release
// once the API call returns.
func (g *PayPalGateway) acquire() (client *paypal.Client, release func(), err error) {
	g.mu.RLock()
	if g.fresh() {
		return g.client, g.mu.RUnlock, nil
	}
	g.mu.RUnlock()

	if err := g.refresh(); err != nil {
		return nil, nil, err
	}
	g.mu.RLock()
	return g.client, g.mu.RUnlock, nil
}

func (g *PayPalGateway) fresh() bool {
	return g.client != nil && g.now().Before(g.expiresAt)
}

func (g *PayPalGateway) refresh() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fresh() {
		return nil
	}

	if g.client == nil {
		client, err := paypal.NewClient(g.cfg.ClientID, g.cfg.ClientSecret, g.cfg.BaseURL == PayPalLiveURL,
			paypal.WithProxyUrl(g.cfg.BaseURL, g.cfg.BaseURL),
			paypal.WithHttpClient(g.hc),
			paypal.WithoutAutoRefreshToken(),
		)
		if err != nil {
			return g.classifyToken(err)
		}
		client.SetRequestHeader(headerRequestID)
		g.client = client
	} else if _, err := g.client.GetAccessToken(); err != nil {
		return g.classifyToken(err)
	}

	g.expiresAt = g.now().Add(time.Duration(g.client.ExpiresIn)*time.Second - tokenRefreshMargin)
	return nil
}

// CreateSubscription creates a subscription and returns its approval link.
func (g *PayPalGateway) CreateSubscription(ctx context.Context, req CreateRequest) (*Subscription, error) {
	if req.PlanID == "" {
		return nil, apperrors.Configuration("paypal plan id is not configured", nil)
	}

	bm := make(gopay.BodyMap)
	bm.Set("plan_id", req.PlanID)
	if req.AccountID != "" {
		bm.Set("custom_id", req.AccountID)
	}
	if req.Email != "" {
		bm.SetBodyMap("subscriber", func(sm gopay.BodyMap) {
			sm.Set("email_address", req.Email)
		})
	}
	bm.SetBodyMap("application_context", func(ac gopay.BodyMap) {
		if req.BrandName != "" {
			ac.Set("brand_name", req.BrandName)
		}
		ac.Set("user_action", "SUBSCRIBE_NOW")
		ac.Set("shipping_preference", "NO_SHIPPING")
		ac.Set("return_url", req.ReturnURL)
		ac.Set("cancel_url", req.CancelURL)
	})

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	client, release, err := g.acquire()
	if err != nil {
		return nil, err
	}
	rsp, err := client.SubscriptionCreate(withRequestID(ctx, key), bm)
	release()
	if err != nil {
		return nil, g.classify(err, opCreate, req.PlanID)
	}
	if rsp.Code != paypal.Success {
		return nil, g.classify(newPayPalAPIError(rsp.Code, rsp.ErrorResponse), opCreate, req.PlanID)
	}

	out := rsp.Response
	sub := &Subscription{ID: out.ID}
	sub.Status, _ = ParseStatus(out.Status)
	for _, link := range out.Links {
		if link != nil && link.Rel == "approve" {
			sub.ApprovalURL = link.Href
			break
		}
	}
	if sub.ApprovalURL == "" {
		return nil, apperrors.Internal("paypal returned no approval link", nil).With("subscription_id", out.ID)
	}
	return sub, nil
}

// GetSubscriptionDetails fetches a subscription.
func (g *PayPalGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	if subscriptionID == "" {
		return nil, apperrors.Validation("subscription_id", "subscription id is required")
	}

	client, release, err := g.acquire()
	if err != nil {
		return nil, err
	}
	capture := &bodyCapture{}
	rsp, err := client.SubscriptionDetails(withBodyCapture(ctx, capture), subscriptionID, nil)
	release()
	if err != nil {
		return nil, g.classify(err, opGet, subscriptionID)
	}
	if rsp.Code != paypal.Success {
		return nil, g.classify(newPayPalAPIError(rsp.Code, rsp.ErrorResponse), opGet, subscriptionID)
	}

	// gopay's SubscriptionDetail does not decode custom_id.
	var extra struct {
		CustomID string `json:"custom_id"`
	}
	_ = json.Unmarshal(capture.data, &extra)
	return paypalDetails(rsp.Response, extra.CustomID), nil
}

// CancelSubscription cancels a subscription. A subscription PayPal already
// considers cancelled is treated as success.
func (g *PayPalGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	if subscriptionID == "" {
		return apperrors.Validation("subscription_id", "subscription id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelNote
	}
	if len(reason) > maxCancelReasonLen {
		reason = reason[:maxCancelReasonLen]
	}

	client, release, err := g.acquire()
	if err != nil {
		return err
	}
	bm := make(gopay.BodyMap)
	bm.Set("reason", reason)
	rsp, err := client.SubscriptionCancel(ctx, subscriptionID, bm)
	release()
	if err != nil {
		return g.classify(err, opCancel, subscriptionID)
	}
	if rsp.Code == paypal.Success {
		return nil
	}
	apiErr := newPayPalAPIError(rsp.Code, rsp.ErrorResponse)
	if apiErr.StatusCode == http.StatusUnprocessableEntity && apiErr.hasIssue("SUBSCRIPTION_STATUS_INVALID") {
		return nil
	}
	return g.classify(apiErr, opCancel, subscriptionID)
}

// VerifyWebhookSignature asks PayPal to verify the notification against the configured webhook.
func (g *PayPalGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	if g.cfg.WebhookID == "" {
		return false, apperrors.Configuration("paypal webhook id is not configured", nil)
	}
	bm := make(gopay.BodyMap)
	for field, header := range map[string]string{
		"auth_algo":         headerAuthAlgo,
		"cert_url":          headerCertURL,
		"transmission_id":   headerTransmissionID,
		"transmission_sig":  headerTransmissionSig,
		"transmission_time": headerTransmissionTime,
	} {
		v := headers.Get(header)
		if v == "" {
			return false, nil
		}
		bm.Set(field, v)
	}
	if !json.Valid(body) {
		return false, nil
	}
	bm.Set("webhook_id", g.cfg.WebhookID)
	// RawMessage keeps the event byte-for-byte; a decoded map would reorder it.
	bm.Set("webhook_event", json.RawMessage(body))

	client, release, err := g.acquire()
	if err != nil {
		return false, err
	}
	rsp, err := client.VerifyWebhookSignature(ctx, bm)
	release()
	if err != nil {
		return false, g.classify(err, opVerify, "")
	}
	return rsp.VerificationStatus == "SUCCESS", nil
}

// paypalResource is a subscription as embedded in webhook notifications.
type paypalResource struct {
	paypal.SubscriptionDetail
	CustomID string `json:"custom_id"`
}

func paypalDetails(s *paypal.SubscriptionDetail, customID string) *SubscriptionDetails {
	status, _ := ParseStatus(s.Status)
	d := &SubscriptionDetails{
		ID:         s.ID,
		Status:     status,
		PlanID:     s.PlanID,
		AccountRef: customID,
	}
	if s.Subscriber != nil {
		d.SubscriberEmail = s.Subscriber.EmailAddress
	}
	return d
}

// ParseEvent decodes a PayPal webhook notification.
func (g *PayPalGateway) ParseEvent(body []byte) (*Event, error) {
	var raw paypal.WebhookEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Validation("body", "malformed webhook payload")
	}
	if raw.EventType == "" {
		return nil, apperrors.Validation("event_type", "event type is required")
	}

	event := &Event{
		ID:   raw.Id,
		Type: raw.EventType,
		Kind: paypalEventKind(raw.EventType),
	}
	if event.Kind == EventOther || len(raw.Resource) == 0 {
		return event, nil
	}

	var sub paypalResource
	if err := json.Unmarshal(raw.Resource, &sub); err != nil {
		return nil, apperrors.Validation("resource", "malformed subscription resource")
	}
	event.SubscriptionID = sub.ID
	event.Details = paypalDetails(&sub.SubscriptionDetail, sub.CustomID)
	return event, nil
}

func paypalEventKind(eventType string) EventKind {
	switch eventType {
	case "BILLING.SUBSCRIPTION.CREATED", "BILLING.SUBSCRIPTION.ACTIVATED":
		return EventSubscriptionActivated
	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED":
		return EventSubscriptionCancelled
	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED", "BILLING.SUBSCRIPTION.SUSPENDED":
		return EventPaymentFailed
	default:
		return EventOther
	}
}

func withRequestID(ctx context.Context, key string) context.Context {
	//nolint:staticcheck // gopay looks custom headers up by plain string key.
	return context.WithValue(ctx, headerRequestID, key)
}

// paypalAPIError is a non-success PayPal response.
type paypalAPIError struct {
	StatusCode int
	Body       paypal.ErrorResponse
}

func newPayPalAPIError(code int, body *paypal.ErrorResponse) *paypalAPIError {
	e := &paypalAPIError{StatusCode: code}
	if body != nil {
		e.Body = *body
	}
	return e
}

func (e *paypalAPIError) Error() string {
	return fmt.Sprintf("paypal: %d %s: %s (debug_id %s)", e.StatusCode, e.Body.Name, e.Body.Message, e.Body.DebugId)
}

func (e *paypalAPIError) hasIssue(issue string) bool {
	if e.Body.Name == issue {
		return true
	}
	for _, d := range e.Body.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

func (e *paypalAPIError) declineReason() (string, bool) {
	for _, d := range e.Body.Details {
		if paypalDeclineIssues[d.Issue] {
			if d.Description != "" {
				return d.Description, true
			}
			return e.Body.Message, true
		}
	}
	if paypalDeclineIssues[e.Body.Name] {
		return e.Body.Message, true
	}
	return "", false
}

type captureKey struct{}

// bodyCapture receives the raw response body of a single call.
type bodyCapture struct {
	data []byte
}

func withBodyCapture(ctx context.Context, c *bodyCapture) context.Context {
	return context.WithValue(ctx, captureKey{}, c)
}

// capturingTransport copies the response body into the request's bodyCapture, if any.
type capturingTransport struct {
	next http.RoundTripper
}

func (t *capturingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c, ok := req.Context().Value(captureKey{}).(*bodyCapture)
	if !ok {
		return resp, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	c.data = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

type paypalOp int

const (
	opCreate paypalOp = iota
	opGet
	opCancel
	opVerify
)

// classifyToken maps access-token failures. gopay reports a rejected token
// request only by its status line.
func (g *PayPalGateway) classifyToken(err error) error {
	if errors.Is(err, gopay.MissPayPalInitParamErr) {
		return apperrors.Configuration("paypal credentials are not configured", err)
	}
	if isTransportError(err) {
		return apperrors.Unavailable(g.Name(), err)
	}
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "HTTP Request Error, StatusCode = %d", &status); scanErr == nil && status >= http.StatusInternalServerError {
		return apperrors.Unavailable(g.Name(), err)
	}
	return apperrors.Configuration("paypal rejected the client credentials", err)
}

func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// classify maps transport and API failures to the application error taxonomy.
func (g *PayPalGateway) classify(err error, op paypalOp, ref string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}

	var apiErr *paypalAPIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, gopay.MissParamErr) {
			return apperrors.Internal("paypal request is missing a required field", err)
		}
		// Transport failures, non-JSON outage pages and verification replies
		// gopay reports without a status.
		return apperrors.Unavailable(g.Name(), err)
	}

	switch {
	case apiErr.StatusCode >= http.StatusInternalServerError, apiErr.StatusCode == http.StatusTooManyRequests:
		return apperrors.Unavailable(g.Name(), err)
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		return apperrors.Configuration("paypal rejected the request credentials", err)
	}

	if reason, ok := apiErr.declineReason(); ok {
		return apperrors.PaymentFailed(reason, err)
	}

	switch op {
	case opCreate:
		// A bad or missing plan is the common cause of a 4xx on create.
		return apperrors.Configuration("paypal rejected the subscription plan", err).With("plan_id", ref)
	case opGet, opCancel:
		if apiErr.StatusCode == http.StatusNotFound || apiErr.hasIssue("RESOURCE_NOT_FOUND") || apiErr.hasIssue("INVALID_RESOURCE_ID") {
			return apperrors.SubscriptionNotFound(ref)
		}
	}
	return apperrors.Internal("paypal request failed", err)
}
