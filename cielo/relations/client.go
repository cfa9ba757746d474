package relations

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
	maxLoggedBody  = 256
)

var tracer = otel.Tracer("cielo.relations")

// TokenSource hands out the current bearer token and renews it on demand.
type TokenSource interface {
	Token() string
	Renew(ctx context.Context, stale string) (string, error)
}

// Client queries the related-wallets endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	timeout    time.Duration
	marker     string
	logger     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUntrackableMarker sets the text the service puts in its error body when it refuses to
// track a wallet with too much activity. Matching is case-insensitive.
func WithUntrackableMarker(marker string) Option {
	return func(c *Client) { c.marker = strings.ToLower(marker) }
}

func NewClient(baseURL string, tokens TokenSource, logger zerolog.Logger, opts ...Option) *Client {
	initPrometheusMetrics()

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		tokens:     tokens,
		timeout:    defaultTimeout,
		marker:     "too many transactions",
		logger:     logger.With().Str("component", "relations").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// FetchRelations never fails: every failure is logged and yields no relations, so a single
// wallet can never stop a crawl.
func (c *Client) FetchRelations(ctx context.Context, address graph.Address) []graph.Relation {
	relations, err := c.Fetch(ctx, address)
	switch {
	case err == nil:
		c.logger.Debug().Str("wallet", address.String()).Int("relations", len(relations)).Msg("fetched relations")
		return relations
	case errors.Is(err, ErrUntrackable):
		c.logger.Debug().Str("wallet", address.String()).Msg("wallet not tracked by the service, skipping")
	case ctx.Err() != nil:
		c.logger.Debug().Str("wallet", address.String()).Err(ctx.Err()).Msg("fetch abandoned")
	default:
		c.logger.Warn().Str("wallet", address.String()).Err(err).Msg("could not fetch relations")
	}
	return nil
}

// Fetch returns the relations of address or an error wrapping one of the package outcomes.
// A refused token is renewed once and the request retried once.
func (c *Client) Fetch(ctx context.Context, address graph.Address) (relations []graph.Relation, err error) {
	ctx, span := tracer.Start(ctx, "relations.Fetch",
		trace.WithAttributes(attribute.String("wallet", address.String())),
	)
	defer func() {
		prometheusRequests.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := address.Validate(); err != nil {
		return nil, errors.Wrapf(ErrFetchFailed, "%v", err)
	}

	token := c.tokens.Token()
	res, err := c.do(ctx, address, token)
	if err != nil {
		return nil, err
	}

	if res.status == http.StatusUnauthorized && !c.untrackable(res.body) {
		span.AddEvent("token renewal")

		renewed, err := c.tokens.Renew(ctx, token)
		if err != nil {
			return nil, errors.Wrapf(ErrRenewalFailed, "%v", err)
		}

		res, err = c.do(ctx, address, renewed)
		if err != nil {
			return nil, err
		}
		if res.status == http.StatusUnauthorized {
			return nil, errors.Wrap(ErrFetchFailed, "token refused again after renewal")
		}
	}

	return c.decode(res)
}

// Probe performs a single authenticated request and returns the raw answer, without retry
// or classification.
func (c *Client) Probe(ctx context.Context, address graph.Address) (int, []byte, error) {
	if err := address.Validate(); err != nil {
		return 0, nil, err
	}
	res, err := c.do(ctx, address, c.tokens.Token())
	if err != nil {
		return 0, nil, err
	}
	return res.status, res.body, nil
}

func (c *Client) url(address graph.Address) string {
	return c.baseURL + "/" + url.PathEscape(address.String()) + "/related-wallets"
}

func (c *Client) do(ctx context.Context, address graph.Address, token string) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, errors.Wrapf(ErrFetchFailed, "waiting for rate limiter: %v", err)
		}
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(address), nil)
	if err != nil {
		return response{}, errors.Wrapf(ErrFetchFailed, "creating request: %v", err)
	}
	req.Header.Add("accept", "application/json")
	if token != "" {
		req.Header.Add("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, errors.Wrapf(ErrFetchFailed, "request for %s: %v", address, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	prometheusRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return response{}, errors.Wrapf(ErrFetchFailed, "reading response for %s: %v", address, err)
	}

	return response{status: res.StatusCode, body: body}, nil
}

func (c *Client) untrackable(body []byte) bool {
	return c.marker != "" && bytes.Contains(bytes.ToLower(body), []byte(c.marker))
}

func (c *Client) decode(res response) ([]graph.Relation, error) {
	if !res.ok() {
		if c.untrackable(res.body) {
			return nil, errors.WithStack(ErrUntrackable)
		}
		if res.status == http.StatusUnauthorized {
			return nil, errors.WithStack(ErrAuthExpired)
		}
		return nil, errors.Wrapf(ErrFetchFailed, "API %d, %s", res.status, truncate(res.body))
	}

	relations, found, err := parseRelations(res.body)
	if err != nil {
		return nil, errors.Wrapf(ErrFetchFailed, "decoding response: %v", err)
	}
	if !found && c.untrackable(res.body) {
		return nil, errors.WithStack(ErrUntrackable)
	}
	return relations, nil
}

type amount float64

// UnmarshalJSON accepts numbers and numeric strings; null and "" are zero. NaN and infinities
// are rejected, which drops the item.
func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.Errorf("non-finite amount %s", s)
	}
	*a = amount(f)
	return nil
}

func (a amount) nonNegative() float64 {
	if a < 0 {
		return 0
	}
	return float64(a)
}

type relatedWallet struct {
	Wallet  string `json:"wallet"`
	Inflow  amount `json:"inflow"`
	Outflow amount `json:"outflow"`
}

// parseRelations reads data.items. found is false when that path is missing or malformed,
// which is not an error; only a body that is not a JSON object is.
func parseRelations(body []byte) (relations []graph.Relation, found bool, err error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, false, err
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(top["data"], &data); err != nil || data == nil {
		return nil, false, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data["items"], &items); err != nil {
		return nil, false, nil
	}

	relations = make([]graph.Relation, 0, len(items))
	for _, raw := range items {
		var w relatedWallet
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		address := graph.NewAddress(w.Wallet)
		if address == "" || address == graph.OverflowAddress {
			continue
		}
		relations = append(relations, graph.Relation{
			Counterparty: address,
			Inflow:       w.Inflow.nonNegative(),
			Outflow:      w.Outflow.nonNegative(),
		})
	}

	return relations, true, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
