package twitterapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/tweetrelay/telemetry"
)

// RuleCallTimeout bounds every rule-management request.
const RuleCallTimeout = 5 * time.Second

// ErrBadResponse is wrapped when a response body cannot be decoded.
var ErrBadResponse = errors.New("rules api: undecodable response")

// Rule is one upstream filter rule.
type Rule struct {
	ID    string
	Value string
}

// Count is an optional integer read from a response summary.
type Count struct {
	Value int
	Valid bool
}

func countOf(p *int) Count {
	if p == nil {
		return Count{}
	}
	return Count{Value: *p, Valid: true}
}

// Mutation is the outcome of an add or delete call as reported upstream.
type Mutation struct {
	Created Count
	Deleted Count
	// Error is the first error message found in the response, if any.
	Error string
}

// ErrorOr returns the upstream error message, or fallback when the response
// carried none.
func (m Mutation) ErrorOr(fallback string) string {
	if m.Error != "" {
		return m.Error
	}
	return fallback
}

// APIError is returned by List when the API answers with a non-200 status.
type APIError struct {
	Status  int
	Message string // upstream message; empty if none could be extracted
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rules api: status %d", e.Status)
	}
	return fmt.Sprintf("rules api: status %d: %s", e.Status, e.Message)
}

// RulesClient lists, adds and deletes stream filter rules.
type RulesClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewRulesClient returns a client with its own bearer transport and the
// RuleCallTimeout.
func NewRulesClient(url, token string) *RulesClient {
	return &RulesClient{URL: url, HTTPClient: NewBearerClient(token, RuleCallTimeout)}
}

func (rc *RulesClient) http() *http.Client {
	if rc.HTTPClient != nil {
		return rc.HTTPClient
	}
	return http.DefaultClient
}

// responseBody covers every response shape of the rules endpoint.
type responseBody struct {
	Data []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"data"`
	Meta struct {
		Summary struct {
			Created *int `json:"created"`
			Deleted *int `json:"deleted"`
		} `json:"summary"`
	} `json:"meta"`
	Errors []struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
	} `json:"errors"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// firstError walks the known error shapes in order of specificity.
func (b *responseBody) firstError() string {
	if len(b.Errors) > 0 {
		e := b.Errors[0]
		if len(e.Errors) > 0 && e.Errors[0].Message != "" {
			return e.Errors[0].Message
		}
		for _, s := range []string{e.Message, e.Detail, e.Title} {
			if s != "" {
				return s
			}
		}
	}
	if b.Detail != "" {
		return b.Detail
	}
	return b.Title
}

// List returns the active rules. An absent data field means no rules.
func (rc *RulesClient) List(ctx context.Context) ([]Rule, error) {
	status, body, err := rc.do(ctx, "rules.list", http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{Status: status, Message: body.firstError()}
	}
	out := make([]Rule, 0, len(body.Data))
	for _, r := range body.Data {
		out = append(out, Rule{ID: r.ID, Value: r.Value})
	}
	return out, nil
}

// Add creates one rule with value as its body. Validation is left to the API;
// rejected rules come back as a Mutation with Error set, not as an error.
func (rc *RulesClient) Add(ctx context.Context, value string) (Mutation, error) {
	payload := map[string]any{"add": []map[string]string{{"value": value}}}
	return rc.mutate(ctx, "rules.add", payload)
}

// Delete removes the rule with the given id.
func (rc *RulesClient) Delete(ctx context.Context, id string) (Mutation, error) {
	payload := map[string]any{"delete": map[string][]string{"ids": {id}}}
	return rc.mutate(ctx, "rules.delete", payload)
}

func (rc *RulesClient) mutate(ctx context.Context, op string, payload any) (Mutation, error) {
	_, body, err := rc.do(ctx, op, http.MethodPost, payload)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{
		Created: countOf(body.Meta.Summary.Created),
		Deleted: countOf(body.Meta.Summary.Deleted),
		Error:   body.firstError(),
	}, nil
}

// do performs one call and decodes the JSON body regardless of status.
func (rc *RulesClient) do(ctx context.Context, op, method string, payload any) (int, *responseBody, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitterapi", op, attribute.String("http.method", method))
	defer span.End()

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rc.URL, reqBody)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var (
		status int
		body   *responseBody
	)
	telemetry.TimeFunc(telemetry.RuleCallDuration, func() {
		status, body, err = rc.roundTrip(req, op)
	})
	if status != 0 {
		telemetry.SetSpanHTTPStatus(span, status)
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return status, body, err
}

func (rc *RulesClient) roundTrip(req *http.Request, op string) (int, *responseBody, error) {
	resp, err := rc.http().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %s (status %d): %w", ErrBadResponse, op, resp.StatusCode, err)
	}
	return resp.StatusCode, &body, nil
}
