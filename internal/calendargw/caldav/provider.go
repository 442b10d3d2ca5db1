// Package caldav implements the Calendar Gateway against a generic CalDAV
// server, grounded on the teacher's
// internal/calendar/infrastructure/caldav/syncer.go — adapted here to the
// calendargw.Gateway contract and its diaGuru/capture_id/action_id tagging
// scheme (§4.7, §6, §9 "the interface is provider-neutral").
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

// PropXDiaGuru tags a VEVENT as managed by this system, the CalDAV
// equivalent of the Google provider's extended-properties map.
const PropXDiaGuru = "X-DIAGURU"

// CredentialsProvider resolves the per-user basic-auth credentials and
// calendar location for a CalDAV account. Implemented by cmd/scheduler's
// staticCalDAVCredentials (one configured account for every user), so this
// package stays free of any credential-storage dependency.
type CredentialsProvider interface {
	Credentials(ctx context.Context, userID uuid.UUID) (Credentials, error)
}

// Credentials is one user's CalDAV account: server URL, basic-auth
// username/password, and the calendar collection path (resolved once and
// cached by the caller; empty CalendarPath means "discover via principal").
type Credentials struct {
	BaseURL      string
	Username     string
	Password     string
	CalendarPath string
}

// Provider is the CalDAV implementation of calendargw.Gateway.
type Provider struct {
	creds  CredentialsProvider
	logger *slog.Logger
}

func NewProvider(creds CredentialsProvider, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{creds: creds, logger: logger}
}

type basicAuthTransport struct {
	username, password string
	base               http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

func (p *Provider) client(ctx context.Context, userID uuid.UUID) (*caldav.Client, Credentials, error) {
	creds, err := p.creds.Credentials(ctx, userID)
	if err != nil {
		return nil, Credentials{}, err
	}
	httpClient := &http.Client{
		Timeout:   15 * time.Second,
		Transport: &basicAuthTransport{username: creds.Username, password: creds.Password, base: http.DefaultTransport},
	}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, creds.Username, creds.Password), creds.BaseURL)
	if err != nil {
		return nil, Credentials{}, err
	}
	if creds.CalendarPath == "" {
		path, err := findCalendarPath(ctx, client)
		if err != nil {
			return nil, Credentials{}, err
		}
		creds.CalendarPath = path
	}
	return client, creds, nil
}

func findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", err
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", err
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", err
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("caldav: no calendars found under %s", homeSet)
	}
	return cals[0].Path, nil
}

// ListEvents queries events in [start, end) via a CalDAV time-range
// REPORT, the same calendar-query shape as the teacher's syncer.
func (p *Provider) ListEvents(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]calendargw.Event, error) {
	client, creds, err := p.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			Comps: []caldav.CalendarCompRequest{
				{Name: "VEVENT", AllProps: true},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{Name: "VEVENT", Start: start.UTC(), End: end.UTC()},
			},
		},
	}

	objs, err := client.QueryCalendar(ctx, creds.CalendarPath, query)
	if err != nil {
		return nil, err
	}

	out := make([]calendargw.Event, 0, len(objs))
	for _, obj := range objs {
		evt, ok := parseCalendarObject(obj)
		if !ok {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

// CreateEvent creates a managed VEVENT tagged per §6's extended-properties
// contract (expressed here as custom iCal properties, since CalDAV has no
// extended-properties concept of its own).
func (p *Provider) CreateEvent(ctx context.Context, userID uuid.UUID, params calendargw.CreateEventParams) (calendargw.Event, error) {
	client, creds, err := p.client(ctx, userID)
	if err != nil {
		return calendargw.Event{}, err
	}

	uid := uuid.New().String()
	tags := map[string]string{
		calendargw.DiaGuruTag: "true",
		"capture_id":          params.CaptureID.String(),
		"action_id":           params.ActionID.String(),
	}
	if params.PlanID != uuid.Nil {
		tags["plan_id"] = params.PlanID.String()
	}
	tags["priority_snapshot"] = fmt.Sprintf("%.4f", params.PriorityScore)

	cal := toICalendar(uid, params.Summary, params.Start, params.End, tags)
	path := eventPath(creds.CalendarPath, uid)

	resp, err := client.PutCalendarObject(ctx, path, cal)
	if err != nil {
		return calendargw.Event{}, err
	}

	return calendargw.Event{
		ID:                 uid,
		Summary:            params.Summary,
		Start:              params.Start,
		End:                params.End,
		ETag:               resp.ETag,
		ExtendedProperties: tags,
	}, nil
}

// DeleteEvent removes a managed event. CalDAV's RemoveAll has no If-Match
// parameter, so the precondition is enforced client-side: the current etag
// is fetched first and compared, mirroring the single-retry-on-412 rule
// (§4.7, §9 "never retry more than once") by re-fetching once on mismatch.
func (p *Provider) DeleteEvent(ctx context.Context, userID uuid.UUID, params calendargw.DeleteEventParams) error {
	client, creds, err := p.client(ctx, userID)
	if err != nil {
		return err
	}
	path := eventPath(creds.CalendarPath, params.EventID)

	err = p.deleteOnce(ctx, client, path, params.ETag)
	if err != calendargw.ErrPreconditionFailed {
		return err
	}
	p.logger.Warn("caldav delete precondition failed, retrying once", "event_id", params.EventID)

	current, getErr := p.GetEvent(ctx, userID, params.EventID)
	if getErr != nil {
		if getErr == calendargw.ErrNotFound {
			return nil
		}
		return err
	}
	return p.deleteOnce(ctx, client, path, current.ETag)
}

func (p *Provider) deleteOnce(ctx context.Context, client *caldav.Client, path, etag string) error {
	if etag != "" {
		obj, err := client.GetCalendarObject(ctx, path)
		if err != nil {
			return nil // already gone; treated as success (§4.7)
		}
		if obj.ETag != etag {
			return calendargw.ErrPreconditionFailed
		}
	}
	return client.RemoveAll(ctx, path)
}

// GetEvent fetches the current remote state, used to refresh a stale etag.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (calendargw.Event, error) {
	client, creds, err := p.client(ctx, userID)
	if err != nil {
		return calendargw.Event{}, err
	}
	path := eventPath(creds.CalendarPath, eventID)

	obj, err := client.GetCalendarObject(ctx, path)
	if err != nil {
		return calendargw.Event{}, calendargw.ErrNotFound
	}
	evt, ok := parseCalendarObject(*obj)
	if !ok {
		return calendargw.Event{}, fmt.Errorf("caldav: malformed event at %s", path)
	}
	return evt, nil
}

func eventPath(calendarPath, uid string) string {
	return strings.TrimSuffix(calendarPath, "/") + "/" + uid + ".ics"
}

func parseCalendarObject(obj caldav.CalendarObject) (calendargw.Event, bool) {
	if obj.Data == nil {
		return calendargw.Event{}, false
	}
	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		event := ical.Event{Component: child}
		start, err1 := event.DateTimeStart(time.UTC)
		end, err2 := event.DateTimeEnd(time.UTC)
		if err1 != nil || err2 != nil {
			continue
		}
		var uid, summary string
		if vals := child.Props[ical.PropUID]; len(vals) > 0 {
			uid = vals[0].Value
		}
		if vals := child.Props[ical.PropSummary]; len(vals) > 0 {
			summary = vals[0].Value
		}

		props := map[string]string{}
		if vals := child.Props[PropXDiaGuru]; len(vals) > 0 && vals[0].Value == "1" {
			props[calendargw.DiaGuruTag] = "true"
		}
		for _, key := range []string{"X-CAPTURE-ID", "X-ACTION-ID", "X-PLAN-ID", "X-PRIORITY-SNAPSHOT"} {
			if vals := child.Props[key]; len(vals) > 0 {
				props[strings.ToLower(strings.TrimPrefix(key, "X-"))] = vals[0].Value
			}
		}

		return calendargw.Event{
			ID:                 uid,
			Summary:            summary,
			Start:              start,
			End:                end,
			ETag:               obj.ETag,
			ExtendedProperties: props,
		}, true
	}
	return calendargw.Event{}, false
}

func toICalendar(uid, summary string, start, end time.Time, tags map[string]string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//diaGuru//scheduler//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	event.Props.SetText(ical.PropSummary, summary)

	if tags[calendargw.DiaGuruTag] == "true" {
		setCustomProp(event, PropXDiaGuru, "1")
	}
	if v, ok := tags["capture_id"]; ok {
		setCustomProp(event, "X-CAPTURE-ID", v)
	}
	if v, ok := tags["action_id"]; ok {
		setCustomProp(event, "X-ACTION-ID", v)
	}
	if v, ok := tags["plan_id"]; ok {
		setCustomProp(event, "X-PLAN-ID", v)
	}
	if v, ok := tags["priority_snapshot"]; ok {
		setCustomProp(event, "X-PRIORITY-SNAPSHOT", v)
	}

	cal.Children = append(cal.Children, event.Component)
	return cal
}

func setCustomProp(event *ical.Event, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	event.Props[name] = []ical.Prop{*prop}
}
