// Package reputation queries the VirusTotal API for the reputation of
// the analyzed artifact. It belongs to the post-analysis phase of the
// pipeline and never runs inside the supervised analysis loop.
package reputation

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/roost-sandbox/roost/internal/model"
)

const defaultBaseURL = "https://www.virustotal.com/vtapi/v2"

// ErrNotScanned reports that VirusTotal has no analysis of the resource
// yet. When scan submission is enabled the caller reacts by submitting
// the resource.
var ErrNotScanned = errors.New("resource has not been scanned yet")

// variantBlacklist holds boilerplate words stripped from engine variant
// names during normalization.
var variantBlacklist = map[string]struct{}{
	"generic": {}, "malware": {}, "trojan": {}, "agent": {}, "win32": {},
	"multi": {}, "w32": {}, "trojanclicker": {}, "trojware": {}, "win": {},
	"a variant of win32": {}, "trj": {}, "susp": {}, "dangerousobject": {},
}

var (
	variantSplitRx = regexp.MustCompile(`[.\-()\[\]/!:]`)
	hexOnlyRx      = regexp.MustCompile(`^[a-fA-F0-9]+$`)
)

// Summary is the short form of a reputation report.
type Summary struct {
	Positives int    `json:"positives"`
	Permalink string `json:"permalink,omitempty"`
	ScanDate  string `json:"scan_date,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Signature is one engine's verdict.
type Signature struct {
	Detected   bool     `json:"detected"`
	Result     string   `json:"result,omitempty"`
	Normalized []string `json:"normalized,omitempty"`
}

// Report is the full reputation report of one resource.
type Report struct {
	Summary    Summary              `json:"summary"`
	Scans      map[string]Signature `json:"scans,omitempty"`
	Normalized []string             `json:"normalized,omitempty"`
}

// Client wraps the VirusTotal API.
type Client struct {
	apikey  string
	scan    bool
	baseURL string
	client  *http.Client
}

func New(cfg model.VirusTotal) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apikey:  cfg.Key,
		scan:    cfg.Scan,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithBaseURL changes the API endpoint. This method exists for unit
// testing only.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// FileReport fetches the report of an already scanned file, addressed
// by its md5.
func (c *Client) FileReport(ctx context.Context, path string) (Report, error) {
	resource, err := fileMD5(path)
	if err != nil {
		return Report{}, err
	}
	return c.report(ctx, "/file/report", resource)
}

// URLReport fetches the report of an already scanned url.
func (c *Client) URLReport(ctx context.Context, target string) (Report, error) {
	return c.report(ctx, "/url/report", target)
}

// URLScan submits a url for scanning and returns the permalink summary.
func (c *Client) URLScan(ctx context.Context, target string) (Report, error) {
	raw, err := c.postForm(ctx, "/url/scan", url.Values{
		"apikey": {c.apikey},
		"url":    {target},
	})
	if err != nil {
		return Report{}, err
	}
	return Report{Summary: Summary{Permalink: raw.Permalink}}, nil
}

// FileScan uploads a file for scanning and returns the permalink summary.
func (c *Client) FileScan(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("apikey", c.apikey); err != nil {
		return Report{}, err
	}
	part, err := mw.CreateFormFile("file", f.Name())
	if err != nil {
		return Report{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return Report{}, err
	}
	if err := mw.Close(); err != nil {
		return Report{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/file/scan", strings.NewReader(body.String()))
	if err != nil {
		return Report{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(req)
	if err != nil {
		return Report{}, err
	}
	return Report{Summary: Summary{Permalink: raw.Permalink}}, nil
}

// rawReport is the wire form of the v2 report response.
type rawReport struct {
	ResponseCode int    `json:"response_code"`
	Positives    int    `json:"positives"`
	Permalink    string `json:"permalink"`
	ScanDate     string `json:"scan_date"`
	Scans        map[string]struct {
		Detected bool   `json:"detected"`
		Result   string `json:"result"`
	} `json:"scans"`
}

func (c *Client) report(ctx context.Context, path, resource string) (Report, error) {
	raw, err := c.postForm(ctx, path, url.Values{
		"apikey":   {c.apikey},
		"resource": {resource},
	})
	if err != nil {
		return Report{}, err
	}

	// response_code 0 means the resource was never analyzed
	if raw.ResponseCode == 0 {
		if c.scan {
			return Report{}, ErrNotScanned
		}
		return Report{Summary: Summary{Error: ErrNotScanned.Error()}}, nil
	}

	report := Report{
		Summary: Summary{
			Positives: raw.Positives,
			Permalink: raw.Permalink,
			ScanDate:  raw.ScanDate,
		},
		Scans: make(map[string]Signature, len(raw.Scans)),
	}

	// normalize every detected variant to narrow the malware family
	seen := make(map[string]struct{})
	for engine, sig := range raw.Scans {
		normalized := Normalize(sig.Result)
		report.Scans[strings.ReplaceAll(engine, ".", "_")] = Signature{
			Detected:   sig.Detected,
			Result:     sig.Result,
			Normalized: normalized,
		}
		for _, n := range normalized {
			key := strings.ToLower(n)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			report.Normalized = append(report.Normalized, n)
		}
	}
	return report, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (rawReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return rawReport{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (rawReport, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return rawReport{}, fmt.Errorf("unable to fetch VirusTotal results: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// anything but 200 yields an empty report, matching the API habit
	// of signalling throttling via status codes
	if resp.StatusCode != http.StatusOK {
		return rawReport{}, nil
	}

	var raw rawReport
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return rawReport{}, fmt.Errorf("unable to fetch VirusTotal results: %w", err)
	}
	return raw, nil
}

// Normalize extracts the useful parts of an engine variant name by
// stripping boilerplate words, short tokens and hex fragments.
func Normalize(variant string) []string {
	if variant == "" {
		return nil
	}

	var ret []string
	for _, word := range variantSplitRx.Split(variant, -1) {
		word = strings.TrimSpace(word)
		if len(word) < 4 {
			continue
		}
		if _, ok := variantBlacklist[strings.ToLower(word)]; ok {
			continue
		}
		if hexOnlyRx.MatchString(word) {
			continue
		}
		ret = append(ret, word)
	}
	return ret
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
