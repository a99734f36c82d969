package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/prospector-bot/prospector/pkg/models"
)

const (
	apiKeyHeader = "x-api-key"

	defaultRequestTimeout = 10 * time.Second
	defaultRetryMax       = 3

	// kept short so a hostile response body cannot flood the logs
	maxErrorBodyLength = 512
)

// API is the part of the marketplace the scanner and solver depend on.
// *Client is the production implementation; tests substitute fakes.
type API interface {
	ListInstances(ctx context.Context, status models.InstanceStatus) ([]models.Instance, error)
	GetInstance(ctx context.Context, instanceID string) (models.Instance, error)
	ListProposals(ctx context.Context) ([]models.Proposal, error)
	CreateProposal(ctx context.Context, instanceID string, maxBid float64) (models.Proposal, error)
	GetChat(ctx context.Context, instanceID string) (models.Chat, error)
	SendMessage(ctx context.Context, instanceID string, message string) error
	ReportSolved(ctx context.Context, instanceID string) error
}

// Client is a thin JSON client for the marketplace v1 API. Failed calls are
// retried with backoff; duplicate side effects are the marketplace's problem,
// it treats proposal creation as idempotent per instance.
type Client struct {
	BaseURI        *url.URL
	DefaultHeaders map[string]string
	Client         *http.Client
}

var _ API = (*Client)(nil)

type Params struct {
	URL            string
	APIKey         string
	RequestTimeout time.Duration
	RetryMax       int
}

func NewClient(params Params) (*Client, error) {
	baseURI, err := url.Parse(strings.TrimSuffix(params.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("marketplace: parsing base URL %q: %w", params.URL, err)
	}
	if params.RequestTimeout <= 0 {
		params.RequestTimeout = defaultRequestTimeout
	}
	if params.RetryMax <= 0 {
		params.RetryMax = defaultRetryMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = params.RetryMax
	retryClient.Logger = leveledLogger{}
	retryClient.HTTPClient.Timeout = params.RequestTimeout
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(nil)

	return &Client{
		BaseURI: baseURI,
		DefaultHeaders: map[string]string{
			apiKeyHeader: params.APIKey,
			"Accept":     "application/json",
		},
		Client: retryClient.StandardClient(),
	}, nil
}

// ListInstances returns all instances carrying the given status code.
func (c *Client) ListInstances(ctx context.Context, status models.InstanceStatus) ([]models.Instance, error) {
	var instances []models.Instance
	api := fmt.Sprintf("/v1/instances/?instance_status=%d", int(status))
	if err := c.doGet(ctx, api, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (c *Client) GetInstance(ctx context.Context, instanceID string) (models.Instance, error) {
	var instance models.Instance
	if err := c.doGet(ctx, "/v1/instances/"+instanceID, &instance); err != nil {
		return models.Instance{}, err
	}
	return instance, nil
}

// ListProposals returns every proposal this agent has ever submitted,
// regardless of status.
func (c *Client) ListProposals(ctx context.Context) ([]models.Proposal, error) {
	var proposals []models.Proposal
	if err := c.doGet(ctx, "/v1/proposals/", &proposals); err != nil {
		return nil, err
	}
	return proposals, nil
}

type createProposalRequest struct {
	MaxBid float64 `json:"max_bid"`
}

// CreateProposal bids on an instance. The marketplace replies with the
// created proposal, though older deployments return an empty body, which is
// tolerated.
func (c *Client) CreateProposal(ctx context.Context, instanceID string, maxBid float64) (models.Proposal, error) {
	var proposal models.Proposal
	api := "/v1/proposals/create/for-instance/" + instanceID
	if err := c.doPost(ctx, api, createProposalRequest{MaxBid: maxBid}, &proposal); err != nil {
		return models.Proposal{}, err
	}
	return proposal, nil
}

func (c *Client) GetChat(ctx context.Context, instanceID string) (models.Chat, error) {
	var chat models.Chat
	if err := c.doGet(ctx, "/v1/chat/"+instanceID, &chat); err != nil {
		return nil, err
	}
	return chat, nil
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage posts a message to the instance chat as this provider.
func (c *Client) SendMessage(ctx context.Context, instanceID string, message string) error {
	api := "/v1/chat/send-message/" + instanceID
	return c.doPost(ctx, api, sendMessageRequest{Message: message}, nil)
}

// ReportSolved marks the instance as solved by this provider.
func (c *Client) ReportSolved(ctx context.Context, instanceID string) error {
	api := "/v1/instances/" + instanceID + "/report-solved"
	return c.doPost(ctx, api, struct{}{}, nil)
}

func (c *Client) doGet(ctx context.Context, api string, resData any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURI.String()+api, nil)
	if err != nil {
		return fmt.Errorf("marketplace: creating Get request: %w", err)
	}
	return c.do(req, resData)
}

func (c *Client) doPost(ctx context.Context, api string, reqData, resData any) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(reqData); err != nil {
		return fmt.Errorf("marketplace: encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURI.String()+api, &body)
	if err != nil {
		return fmt.Errorf("marketplace: creating Post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, resData)
}

func (c *Client) do(req *http.Request, resData any) error {
	for header, value := range c.DefaultHeaders {
		req.Header.Set(header, value)
	}
	req.Close = true // don't keep connections lying around

	res, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("marketplace: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("error closing response body")
		}
	}()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		responseBody, readErr := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyLength))
		if readErr != nil {
			responseBody = []byte("<unreadable body>")
		}
		return &APIError{
			StatusCode: res.StatusCode,
			Method:     req.Method,
			Path:       req.URL.Path,
			Body:       strings.TrimSpace(string(responseBody)),
		}
	}

	if resData == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(resData); err != nil {
		if err == io.EOF {
			return nil // no error, just no data
		}
		return fmt.Errorf("marketplace: decoding response body: %w", err)
	}
	return nil
}

// leveledLogger bridges retryablehttp's logging into zerolog.
type leveledLogger struct{}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Fields(keysAndValues).Msg(msg)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Info().Fields(keysAndValues).Msg(msg)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Fields(keysAndValues).Msg(msg)
}
