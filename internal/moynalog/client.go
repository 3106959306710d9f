package moynalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"moynalog-client/utils"
)

const (
	defaultBaseURL   = "https://lknpd.nalog.ru"
	defaultStatusURL = "https://lkfl2.nalog.ru/lkfl/login/"

	apiPrefix  = "/api/v1"
	authPath   = "/auth/lkfl"
	salePath   = "/income"
	salesPath  = "/incomes/csv"
	cancelPath = "/cancel"
	summPath   = "/incomes/summary"
	bonusPath  = "/taxpayer/bonus"
	infoPath   = "/job/info"
	debtsPath  = "/taxpayer/debts"

	appVersion = "1.0.0"
	sourceType = "WEB"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/56.0.2924.87 Safari/537.36"

	defaultTimeout = 30 * time.Second

	// defaultCancelComment - комментарий аннулирования по умолчанию,
	// как его показывает само приложение "Мой налог".
	defaultCancelComment = "Чек сформирован ошибочно"
)

// Client представляет клиент для работы с API МойНалог.
// Учётные данные неизменны в течение жизни клиента; токен доступа
// кэшируется и обновляется прозрачно. Клиент не рассчитан на
// конкурентное использование из нескольких горутин.
type Client struct {
	httpClient *http.Client
	baseURL    string
	statusURL  string
	apiURL     string

	inn       string
	password  string
	deviceID  string
	userAgent string
	insecure  bool
	timeout   time.Duration

	token        string
	refreshToken string
	tokenExpiry  time.Time

	now func() time.Time
}

// Option настраивает клиент при создании.
type Option func(*Client)

// WithBaseURL заменяет адрес основного API (используется в тестах).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithStatusURL заменяет адрес статусного эндпоинта (используется в тестах).
func WithStatusURL(u string) Option {
	return func(c *Client) { c.statusURL = u }
}

// WithHTTPClient подставляет готовый http.Client вместо клиента по
// умолчанию; таймауты и транспорт тогда полностью на стороне вызывающего.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout меняет таймаут http-клиента по умолчанию.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecureTLS отключает проверку сертификата портала.
// НЕБЕЗОПАСНО: оставлено только для обхода проблем с цепочкой
// сертификатов lkfl2; по умолчанию проверка включена.
func WithInsecureTLS() Option {
	return func(c *Client) { c.insecure = true }
}

// headerTransport добавляет фиксированные заголовки к каждому запросу
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for key, value := range t.headers {
		r.Header.Set(key, value)
	}
	return t.base.RoundTrip(r)
}

// New создает новый клиент МойНалог и сразу проверяет доступность
// портала: 503 на статусном эндпоинте означает технические работы и
// возвращается как ErrServiceUnavailable; сетевые сбои - как
// *TransportError. Идентификатором устройства служит email.
func New(email, inn, password string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   defaultBaseURL,
		statusURL: defaultStatusURL,
		inn:       inn,
		password:  password,
		deviceID:  email,
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.apiURL = c.baseURL + apiPrefix

	if c.httpClient == nil {
		base := http.DefaultTransport
		if c.insecure {
			base = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
		c.httpClient = &http.Client{
			Timeout: c.timeout,
			Transport: &headerTransport{
				base:    base,
				headers: map[string]string{"User-Agent": c.userAgent},
			},
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.checkStatus(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// checkStatus опрашивает статусный эндпоинт; тело ответа не разбирается,
// важен только код состояния.
func (c *Client) checkStatus(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "status", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrServiceUnavailable
	}

	return nil
}

// Authenticate выполняет аутентификацию на портале и сохраняет пару
// токенов. Контракт ответа: тело непустое (иначе ErrEmptyResponse) и
// содержит token и refreshToken (иначе ErrAuthenticationIncomplete).
// Возвращается разобранный ответ целиком, включая сырое тело.
func (c *Client) Authenticate(ctx context.Context) (*AuthResponse, error) {
	authRequest := AuthRequest{
		Username: c.inn,
		Password: c.password,
		DeviceInfo: DeviceInfo{
			SourceDeviceId: c.deviceID,
			SourceType:     sourceType,
			AppVersion:     appVersion,
			MetaDetails:    MetaDetails{UserAgent: c.userAgent},
		},
	}

	reqBody, err := json.Marshal(authRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+authPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "auth", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading auth response body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("auth: %w", ErrEmptyResponse)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	authResp.Raw = body

	if authResp.Token == "" || authResp.RefreshToken == "" {
		return nil, ErrAuthenticationIncomplete
	}

	c.token = authResp.Token
	c.refreshToken = authResp.RefreshToken
	if authResp.TokenExpireIn != nil {
		c.tokenExpiry = *authResp.TokenExpireIn
	} else {
		c.tokenExpiry = time.Time{}
	}

	slog.Info("Moynalog client authenticated successfully", "inn", utils.MaskHalf(c.inn))
	return &authResp, nil
}

// ensureAuthenticated проверяет и обновляет токен при необходимости
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.token == "" {
		_, err := c.Authenticate(ctx)
		return err
	}
	if !c.tokenExpiry.IsZero() && !c.now().Add(30*time.Second).Before(c.tokenExpiry) {
		_, err := c.Authenticate(ctx)
		return err
	}
	return nil
}

var errTokenExpired = errors.New("moynalog token expired")

// doAuthorized выполняет запрос с bearer-авторизацией. На 401 токен
// обновляется принудительно и запрос повторяется один раз; любой другой
// статус вне 2xx возвращается как ошибка вместе с телом ответа.
func (c *Client) doAuthorized(ctx context.Context, method, url string, reqBody []byte) ([]byte, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	doSend := func() ([]byte, error) {
		var r io.Reader
		if reqBody != nil {
			r = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Op: method + " " + url, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			io.Copy(io.Discard, resp.Body)
			return nil, errTokenExpired
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading response body: %w", err)
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("%s %s failed with status %d: %s", method, url, resp.StatusCode, body)
		}
		return body, nil
	}

	body, err := doSend()
	if errors.Is(err, errTokenExpired) {
		if _, authErr := c.Authenticate(ctx); authErr != nil {
			return nil, fmt.Errorf("reauthentication failed after token expiration: %w", authErr)
		}
		body, err = doSend()
		if errors.Is(err, errTokenExpired) {
			return nil, fmt.Errorf("request unauthorized after reauthentication")
		}
	}
	return body, err
}

// CreateReceipt регистрирует доход и возвращает approvedReceiptUuid,
// подтверждённый порталом. После регистрации чек сразу запрашивается с
// эндпоинта печати: пустое тело - ErrEmptyResponse, статус не 200 -
// ErrDownloadFailed. При params.Download картинка сохраняется в файл
// "чек_<uuid>.jpg" в текущем каталоге.
func (c *Client) CreateReceipt(ctx context.Context, params CreateReceiptParams) (string, error) {
	if params.Name == "" {
		return "", fmt.Errorf("moynalog: service name must not be empty")
	}
	if params.Price <= 0 {
		return "", fmt.Errorf("moynalog: price must be positive, got %d", params.Price)
	}

	date := params.Date
	if date.IsZero() {
		date = c.now()
	}
	incomeType := params.IncomeType
	if incomeType == "" {
		incomeType = IncomeTypeFromIndividual
	}
	paymentType := params.PaymentType
	if paymentType == "" {
		paymentType = PaymentTypeCash
	}

	amount := strconv.FormatInt(params.Price, 10)
	formattedTime := formatPortalTime(date)

	incomeRequest := CreateIncomeRequest{
		OperationTime: formattedTime,
		RequestTime:   formattedTime,
		Services: []Service{{
			Name:     params.Name,
			Amount:   amount,
			Quantity: "1",
		}},
		TotalAmount: amount,
		Client: IncomeClient{
			ContactPhone: optional(params.ContactPhone),
			DisplayName:  optional(params.DisplayName),
			INN:          optional(params.CustomerINN),
			IncomeType:   incomeType,
		},
		PaymentType:                     paymentType,
		IgnoreMaxTotalIncomeRestriction: params.IgnoreMaxTotalIncomeRestriction,
	}

	reqBody, err := json.Marshal(incomeRequest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal income request: %w", err)
	}

	body, err := c.doAuthorized(ctx, http.MethodPost, c.apiURL+salePath, reqBody)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", fmt.Errorf("sale: %w", ErrEmptyResponse)
	}

	var incomeResp CreateIncomeResponse
	if err := json.Unmarshal(body, &incomeResp); err != nil {
		return "", fmt.Errorf("failed to decode income response: %w", err)
	}
	if incomeResp.ApprovedReceiptUUID == "" {
		return "", fmt.Errorf("moynalog: sale response has no approvedReceiptUuid")
	}

	receiptUUID := incomeResp.ApprovedReceiptUUID

	image, err := c.ReceiptImage(ctx, receiptUUID)
	if err != nil {
		return "", err
	}

	if params.Download {
		filename := fmt.Sprintf("чек_%s.jpg", receiptUUID)
		if err := os.WriteFile(filename, image, 0o644); err != nil {
			return "", fmt.Errorf("failed to save receipt image: %w", err)
		}
		slog.Info("Receipt image saved", "file", filename)
	}

	slog.Info("Income receipt created successfully", "uuid", receiptUUID, "amount", amount)
	return receiptUUID, nil
}

// ReceiptImage скачивает отрисованный чек (JPEG) с эндпоинта печати.
// Эндпоинт не требует авторизации.
func (c *Client) ReceiptImage(ctx context.Context, receiptID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ReceiptURL(receiptID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "receipt print", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading receipt body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("receipt print: %w", ErrEmptyResponse)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("receipt print status %d: %w", resp.StatusCode, ErrDownloadFailed)
	}

	return body, nil
}

// ReceiptURL возвращает постоянную ссылку на просмотр/печать чека.
// Чистая функция: сетевых вызовов нет.
func (c *Client) ReceiptURL(receiptID string) string {
	return fmt.Sprintf("%s/receipt/%s/%s/print", c.apiURL, c.inn, receiptID)
}

// Cancel аннулирует чек. Разобранный JSON-ответ портала возвращается
// как есть, его схема не валидируется.
func (c *Client) Cancel(ctx context.Context, receiptID string, params CancelParams) (map[string]any, error) {
	comment := params.Comment
	if comment == "" {
		comment = defaultCancelComment
	}
	date := params.Date
	if date.IsZero() {
		date = c.now()
	}

	formattedTime := formatPortalTime(date)
	cancelRequest := CancelRequest{
		OperationTime: formattedTime,
		RequestTime:   formattedTime,
		Comment:       comment,
		ReceiptUUID:   receiptID,
		PartnerCode:   optional(params.PartnerCode),
	}

	reqBody, err := json.Marshal(cancelRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cancel request: %w", err)
	}

	body, err := c.doAuthorized(ctx, http.MethodPost, c.apiURL+cancelPath, reqBody)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("cancel: %w", ErrEmptyResponse)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cancel response: %w", err)
	}

	slog.Info("Receipt cancelled", "uuid", receiptID)
	return result, nil
}

// Summary возвращает сводку по доходам.
func (c *Client) Summary(ctx context.Context) (map[string]any, error) {
	return c.accountJSON(ctx, summPath, "summary")
}

// Bonus возвращает состояние бонусного счета (налоговый вычет).
func (c *Client) Bonus(ctx context.Context) (map[string]any, error) {
	return c.accountJSON(ctx, bonusPath, "bonus")
}

// JobInfo возвращает сведения о занятости налогоплательщика.
func (c *Client) JobInfo(ctx context.Context) (map[string]any, error) {
	return c.accountJSON(ctx, infoPath, "job info")
}

// Debts возвращает задолженности налогоплательщика.
func (c *Client) Debts(ctx context.Context) (map[string]any, error) {
	return c.accountJSON(ctx, debtsPath, "debts")
}

// accountJSON - общая форма четырёх справочных запросов: авторизованный
// GET, пустое тело - ошибка, JSON отдаётся без валидации схемы.
func (c *Client) accountJSON(ctx context.Context, path, op string) (map[string]any, error) {
	body, err := c.doAuthorized(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return result, nil
}

// formatPortalTime приводит время к формату портала: ISO-8601 с
// локальным смещением, точность до секунд, без долей.
func formatPortalTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
