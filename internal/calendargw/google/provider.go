// Package google implements the Calendar Gateway against the Google
// Calendar v3 REST API, grounded on the teacher's
// internal/calendar/infrastructure/google/syncer.go — extended here with
// etag-aware create/delete and the single-retry-on-412 rule (§4.7, §9).
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenSourceProvider resolves a per-user OAuth2 token source. Implemented
// by internal/oauthtoken so this package stays free of that dependency.
type TokenSourceProvider interface {
	TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error)
}

// Authenticator is the richer capability internal/oauthtoken.Service
// actually provides: a forced, synchronous re-refresh after the provider
// rejects a token with 401, and the corresponding needs_reconnect flip on
// persistent failure (§4.7 "a 401 triggers a single retry after a
// synchronous refresh; a persistent 401/403 flips needs_reconnect"). A
// plain TokenSourceProvider still works — it simply gets no 401 retry.
type Authenticator interface {
	TokenSourceProvider
	HandleUnauthorized(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error)
}

// Provider is the Google Calendar implementation of calendargw.Gateway.
type Provider struct {
	tokens     TokenSourceProvider
	logger     *slog.Logger
	baseURL    string
	calendarID string
}

func NewProvider(tokens TokenSourceProvider, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{tokens: tokens, logger: logger, baseURL: defaultBaseURL, calendarID: "primary"}
}

func (p *Provider) client(ctx context.Context, userID uuid.UUID) (*http.Client, error) {
	source, err := p.tokens.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   10 * time.Second,
		Transport: &oauthTransport{base: http.DefaultTransport, source: source},
	}, nil
}

// do sends the request built by newReq, retrying exactly once on HTTP 401
// after a synchronous forced token refresh (§4.7, §9 "never retry more
// than once"). newReq is called again for the retry since a request with
// a body can only be sent once.
func (p *Provider) do(ctx context.Context, userID uuid.UUID, newReq func() (*http.Request, error)) (*http.Response, error) {
	client, err := p.client(ctx, userID)
	if err != nil {
		return nil, err
	}
	req, err := newReq()
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	auth, ok := p.tokens.(Authenticator)
	if !ok {
		return resp, nil
	}
	source, refreshErr := auth.HandleUnauthorized(ctx, userID)
	if refreshErr != nil {
		return nil, refreshErr
	}
	retryClient := &http.Client{Timeout: 10 * time.Second, Transport: &oauthTransport{base: http.DefaultTransport, source: source}}
	retryReq, err := newReq()
	if err != nil {
		return nil, err
	}
	return retryClient.Do(retryReq)
}

type googleEvent struct {
	ID                 string `json:"id,omitempty"`
	Summary            string `json:"summary"`
	ExtendedProperties struct {
		Private map[string]string `json:"private,omitempty"`
	} `json:"extendedProperties,omitempty"`
	Start struct {
		DateTime string `json:"dateTime"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
	} `json:"end"`
}

// ListEvents returns events in [start, end), tagging managed ones via
// extended properties so the caller can distinguish them (§4.7, §6).
func (p *Provider) ListEvents(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]calendargw.Event, error) {
	query := fmt.Sprintf("timeMin=%s&timeMax=%s&singleEvents=true&orderBy=startTime",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	url := fmt.Sprintf("%s/calendars/%s/events?%s", p.baseURL, p.calendarID, query)
	resp, err := p.do(ctx, userID, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var payload struct {
		Items []struct {
			ID                 string `json:"id"`
			Summary            string `json:"summary"`
			ETag               string `json:"etag"`
			ExtendedProperties struct {
				Private map[string]string `json:"private"`
			} `json:"extendedProperties"`
			Start struct {
				DateTime string `json:"dateTime"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
			} `json:"end"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]calendargw.Event, 0, len(payload.Items))
	for _, item := range payload.Items {
		s, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
		e, err2 := time.Parse(time.RFC3339, item.End.DateTime)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, calendargw.Event{
			ID:                 item.ID,
			Summary:            item.Summary,
			Start:              s,
			End:                e,
			ETag:               item.ETag,
			ExtendedProperties: item.ExtendedProperties.Private,
		})
	}
	return out, nil
}

// CreateEvent creates a managed event tagged per §6's extended-properties
// contract, returning its remote id and etag.
func (p *Provider) CreateEvent(ctx context.Context, userID uuid.UUID, params calendargw.CreateEventParams) (calendargw.Event, error) {
	event := googleEvent{Summary: params.Summary}
	event.ExtendedProperties.Private = map[string]string{
		calendargw.DiaGuruTag: "true",
		"capture_id":          params.CaptureID.String(),
		"action_id":           params.ActionID.String(),
	}
	if params.PlanID != uuid.Nil {
		event.ExtendedProperties.Private["plan_id"] = params.PlanID.String()
	}
	event.ExtendedProperties.Private["priority_snapshot"] = fmt.Sprintf("%.4f", params.PriorityScore)
	event.Start.DateTime = params.Start.Format(time.RFC3339)
	event.End.DateTime = params.End.Format(time.RFC3339)

	body, err := json.Marshal(event)
	if err != nil {
		return calendargw.Event{}, err
	}
	url := fmt.Sprintf("%s/calendars/%s/events", p.baseURL, p.calendarID)

	resp, err := p.do(ctx, userID, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return calendargw.Event{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return calendargw.Event{}, responseError(resp)
	}

	var created struct {
		ID   string `json:"id"`
		ETag string `json:"etag"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return calendargw.Event{}, err
	}

	return calendargw.Event{
		ID:                 created.ID,
		Summary:            params.Summary,
		Start:              params.Start,
		End:                params.End,
		ETag:               created.ETag,
		ExtendedProperties: event.ExtendedProperties.Private,
	}, nil
}

// DeleteEvent sends If-Match and retries exactly once on 412 after
// re-fetching the current etag (§4.7, §9 "never retry more than once").
func (p *Provider) DeleteEvent(ctx context.Context, userID uuid.UUID, params calendargw.DeleteEventParams) error {
	err := p.deleteOnce(ctx, userID, params.EventID, params.ETag)
	if !isPreconditionFailed(err) {
		return err
	}

	current, getErr := p.GetEvent(ctx, userID, params.EventID)
	if getErr != nil {
		return err
	}
	return p.deleteOnce(ctx, userID, params.EventID, current.ETag)
}

func (p *Provider) deleteOnce(ctx context.Context, userID uuid.UUID, eventID, etag string) error {
	url := fmt.Sprintf("%s/calendars/%s/events/%s", p.baseURL, p.calendarID, eventID)
	resp, err := p.do(ctx, userID, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return nil, err
		}
		if etag != "" {
			req.Header.Set("If-Match", etag)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusPreconditionFailed {
		return calendargw.ErrPreconditionFailed
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil // already gone; treated as success (§4.7)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	return err == calendargw.ErrPreconditionFailed
}

// GetEvent fetches the current remote state, used to refresh a stale etag.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (calendargw.Event, error) {
	url := fmt.Sprintf("%s/calendars/%s/events/%s", p.baseURL, p.calendarID, eventID)
	resp, err := p.do(ctx, userID, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return calendargw.Event{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return calendargw.Event{}, calendargw.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return calendargw.Event{}, responseError(resp)
	}

	var item struct {
		ID                 string `json:"id"`
		Summary            string `json:"summary"`
		ETag               string `json:"etag"`
		ExtendedProperties struct {
			Private map[string]string `json:"private"`
		} `json:"extendedProperties"`
		Start struct {
			DateTime string `json:"dateTime"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
		} `json:"end"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return calendargw.Event{}, err
	}
	s, _ := time.Parse(time.RFC3339, item.Start.DateTime)
	e, _ := time.Parse(time.RFC3339, item.End.DateTime)
	return calendargw.Event{
		ID:                 item.ID,
		Summary:            item.Summary,
		Start:              s,
		End:                e,
		ETag:               item.ETag,
		ExtendedProperties: item.ExtendedProperties.Private,
	}, nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("google calendar: status=%d body=%s", resp.StatusCode, string(body))
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}
