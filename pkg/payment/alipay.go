package payment

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	methodPrecreate = "alipay.trade.precreate"
	methodQuery     = "alipay.trade.query"

	codeSuccess       = "10000"
	subCodeNotExist   = "ACQ.TRADE_NOT_EXIST"
	timestampLayout   = "2006-01-02 15:04:05"
	defaultGatewayURL = "https://openapi.alipay.com/gateway.do"
)

type AlipayOptions struct {
	AppID      string
	PrivateKey string // PEM or bare base64, PKCS#1 or PKCS#8
	PublicKey  string // gateway public key used to verify notifications
	GatewayURL string
	NotifyURL  string
	Timeout    time.Duration
}

// AlipayGateway talks to the Alipay open platform (face-to-face QR payments).
type AlipayGateway struct {
	appID      string
	gatewayURL string
	notifyURL  string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	client     *resty.Client
	log        *zap.Logger
	now        func() time.Time
}

func NewAlipayGateway(opts AlipayOptions, log *zap.Logger) (*AlipayGateway, error) {
	priv, err := ParsePrivateKey(opts.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("alipay app key: %w", err)
	}
	pub, err := ParsePublicKey(opts.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	if opts.GatewayURL == "" {
		opts.GatewayURL = defaultGatewayURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &AlipayGateway{
		appID:      opts.AppID,
		gatewayURL: opts.GatewayURL,
		notifyURL:  opts.NotifyURL,
		privateKey: priv,
		publicKey:  pub,
		client:     resty.New().SetTimeout(opts.Timeout),
		log:        log.Named("alipay"),
		now:        time.Now,
	}, nil
}

type apiResponse struct {
	Code       string `json:"code"`
	Msg        string `json:"msg"`
	SubCode    string `json:"sub_code"`
	SubMsg     string `json:"sub_msg"`
	OutTradeNo string `json:"out_trade_no"`
	QRCode     string `json:"qr_code"`
	TradeNo    string `json:"trade_no"`
	TradeState string `json:"trade_status"`
}

func (g *AlipayGateway) Precreate(ctx context.Context, req PrecreateRequest) (*PrecreateResponse, error) {
	amount, err := ValidateAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	subject, err := SanitizeSubject(req.Subject)
	if err != nil {
		return nil, err
	}
	biz := map[string]string{
		"out_trade_no": req.OutTradeNo,
		"total_amount": amount.StringFixed(2),
		"subject":      subject,
	}
	out, _, err := g.call(ctx, methodPrecreate, biz, true)
	if err != nil {
		return nil, err
	}
	if out.Code != codeSuccess {
		return nil, fmt.Errorf("%w: precreate %s: %s %s", ErrGateway, out.Code, out.SubCode, out.SubMsg)
	}
	if out.QRCode == "" {
		return nil, fmt.Errorf("%w: precreate returned no qr_code", ErrGateway)
	}
	g.log.Info("precreate ok", zap.String("out_trade_no", req.OutTradeNo), zap.String("amount", amount.StringFixed(2)))
	return &PrecreateResponse{OutTradeNo: req.OutTradeNo, QRCode: out.QRCode}, nil
}

func (g *AlipayGateway) Query(ctx context.Context, outTradeNo string) (*QueryResponse, error) {
	out, raw, err := g.call(ctx, methodQuery, map[string]string{"out_trade_no": outTradeNo}, false)
	if err != nil {
		return nil, err
	}
	if out.Code != codeSuccess {
		// The trade only exists once the buyer has scanned the code.
		if out.SubCode == subCodeNotExist {
			return &QueryResponse{OutTradeNo: outTradeNo, Status: Unknown, Raw: raw}, nil
		}
		return nil, fmt.Errorf("%w: query %s: %s %s", ErrGateway, out.Code, out.SubCode, out.SubMsg)
	}
	return &QueryResponse{
		OutTradeNo: outTradeNo,
		TradeNo:    out.TradeNo,
		Status:     ParseTradeStatus(out.TradeState),
		Raw:        raw,
	}, nil
}

// VerifyNotification checks the RSA2 signature of an asynchronous notify.
func (g *AlipayGateway) VerifyNotification(form url.Values) bool {
	sig := form.Get("sign")
	if sig == "" {
		return false
	}
	if st := form.Get("sign_type"); st != "" && st != "RSA2" {
		return false
	}
	if app := form.Get("app_id"); app != "" && app != g.appID {
		return false
	}
	return verifyRSA2(g.publicKey, signContent(form, "sign", "sign_type"), sig)
}

func (g *AlipayGateway) call(ctx context.Context, method string, biz map[string]string, withNotify bool) (*apiResponse, string, error) {
	bizJSON, err := json.Marshal(biz)
	if err != nil {
		return nil, "", err
	}
	params := url.Values{}
	params.Set("app_id", g.appID)
	params.Set("method", method)
	params.Set("format", "JSON")
	params.Set("charset", "utf-8")
	params.Set("sign_type", "RSA2")
	params.Set("timestamp", g.now().Format(timestampLayout))
	params.Set("version", "1.0")
	params.Set("biz_content", string(bizJSON))
	if withNotify && g.notifyURL != "" {
		params.Set("notify_url", g.notifyURL)
	}
	sig, err := signRSA2(g.privateKey, signContent(params, "sign"))
	if err != nil {
		return nil, "", fmt.Errorf("sign %s: %w", method, err)
	}
	params.Set("sign", sig)

	resp, err := g.client.R().
		SetContext(ctx).
		SetFormDataFromValues(params).
		Post(g.gatewayURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrGateway, method, err)
	}
	body := resp.Body()
	if resp.IsError() {
		return nil, string(body), fmt.Errorf("%w: %s: http %d", ErrGateway, method, resp.StatusCode())
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, string(body), fmt.Errorf("%w: %s: decode: %v", ErrGateway, method, err)
	}
	key := responseKey(method)
	rawResp, ok := envelope[key]
	if !ok {
		return nil, string(body), fmt.Errorf("%w: %s: missing %s", ErrGateway, method, key)
	}
	var out apiResponse
	if err := json.Unmarshal(rawResp, &out); err != nil {
		return nil, string(body), fmt.Errorf("%w: %s: decode: %v", ErrGateway, method, err)
	}
	return &out, string(rawResp), nil
}

// responseKey turns "alipay.trade.query" into "alipay_trade_query_response".
func responseKey(method string) string {
	b := []byte(method)
	for i := range b {
		if b[i] == '.' {
			b[i] = '_'
		}
	}
	return string(b) + "_response"
}
