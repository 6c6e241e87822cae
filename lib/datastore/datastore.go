// Package datastore talks to the shared student datastore over its
// PostgREST interface.
package datastore

import (
	"context"
	"fmt"
	"net/url"

	"classlens-backend/lib/restyutil"
	"classlens-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("classlens.lib.datastore")

type Client struct {
	http *resty.Client
}

type ClientOptions struct {
	// project base url, e.g. https://xyzcompany.supabase.co
	BaseUrl    string
	ServiceKey string
	// DebugOutput, when non-nil, receives a dump of every http
	// exchange while debug logging is enabled.
	DebugOutput restyutil.Output
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		return nil, fmt.Errorf("datastore base url is required")
	}
	if opts.ServiceKey == "" {
		return nil, fmt.Errorf("datastore service key is required")
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Hostname() == "" {
		return nil, fmt.Errorf("datastore base url has no host: %s", opts.BaseUrl)
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetHeader("apikey", opts.ServiceKey)
	client.SetHeader("Authorization", "Bearer "+opts.ServiceKey)
	client.SetHeader("Content-Type", "application/json")

	telemetry.InstrumentResty(client, "datastore/http")
	restyutil.AttachDebugOutput(client, opts.DebugOutput)

	return &Client{http: client}, nil
}

// Upsert writes rows into table, updating rows whose onConflict column
// already holds the same value instead of failing.
func (c *Client) Upsert(ctx context.Context, table, onConflict string, rows any) error {
	ctx, span := tracer.Start(ctx, "datastore:Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("table", table),
		attribute.String("on_conflict", onConflict),
	)

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates").
		SetQueryParam("on_conflict", onConflict).
		SetBody(rows).
		Post("/rest/v1/" + table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert request failed")
		return err
	}
	if res.IsError() {
		err := fmt.Errorf("upsert %s: status %d: %s", table, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert rejected")
		return err
	}
	return nil
}

// Select fetches all rows of table into out, which must be a pointer to
// a slice of row structs.
func (c *Client) Select(ctx context.Context, table string, out any) error {
	ctx, span := tracer.Start(ctx, "datastore:Select")
	defer span.End()
	span.SetAttributes(attribute.String("table", table))

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("select", "*").
		SetResult(out).
		Get("/rest/v1/" + table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select request failed")
		return err
	}
	if res.IsError() {
		err := fmt.Errorf("select %s: status %d: %s", table, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "select rejected")
		return err
	}
	return nil
}
