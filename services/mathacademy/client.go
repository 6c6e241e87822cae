// Package mathacademy scrapes per-student progress and activity off the
// Math Academy teacher dashboard and pushes it to the shared datastore.
package mathacademy

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"classlens-backend/lib/restyutil"
	"classlens-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("classlens.services.mathacademy")

var InvalidCredentials = fmt.Errorf("Incorrect username or password.")

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	// BaseUrl defaults to the production site when empty.
	BaseUrl string
	// DebugOutput, when non-nil, receives a dump of every http
	// exchange while debug logging is enabled.
	DebugOutput restyutil.Output
}

const productionBaseURL = "https://www.mathacademy.com"

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = productionBaseURL
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "mathacademy/http")
	restyutil.AttachDebugOutput(client, opts.DebugOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// Login submits the plain login form. The site bounces back to /login on a
// bad password and redirects into the app on success.
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"usernameOrEmail": usernameOrEmail,
			"password":        password,
		}).
		Post("/login")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	finalURL := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	if strings.Contains(finalURL, "login") {
		span.SetStatus(codes.Error, "still on login page")
		return InvalidCredentials
	}
	return nil
}

// FetchDashboard loads the teacher dashboard listing every student.
func (c *Client) FetchDashboard(ctx context.Context) (*goquery.Document, error) {
	return c.fetchDocument(ctx, "/students")
}

// FetchActivity loads a student's activity page.
func (c *Client) FetchActivity(ctx context.Context, studentID string) (*goquery.Document, error) {
	return c.fetchDocument(ctx, fmt.Sprintf("/students/%s/activity", studentID))
}

// FetchProgress loads a student's course progress page.
func (c *Client) FetchProgress(ctx context.Context, studentID string) (*goquery.Document, error) {
	return c.fetchDocument(ctx, fmt.Sprintf("/students/%s/progress", studentID))
}

func (c *Client) fetchDocument(ctx context.Context, path string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:fetchDocument")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	if res.IsError() {
		err := fmt.Errorf("fetch %s: status %d", path, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	return doc, nil
}
