package tool_webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/threadagent/toolsutil"
)

// Tool name constant
const Name = "web_fetch"

const webFetchPrompt = `Fetches content from an http or https URL.

- format selects the output: "markdown" (default) converts HTML pages, "text" strips markup, "html" returns the raw page
- timeout is in seconds (default 30, max 120)
- Responses are capped at 5MB and redirects are followed up to 10 times
- Non-2xx responses are reported as errors`

const (
	maxBodySize    = 5 * 1024 * 1024
	defaultTimeout = 30
	maxTimeout     = 120
	userAgent      = "threadagent/1.0"
)

// WebFetchInput represents the parameters for web_fetch
type WebFetchInput struct {
	URL     string `json:"url" required:"true" description:"The URL to fetch content from"`
	Format  string `json:"format,omitempty" enum:"text,markdown,html" description:"The format to return the content in"`
	Timeout int    `json:"timeout,omitempty" description:"Timeout in seconds (max 120, default 30)"`
}

// WebFetchOutput represents the response from web_fetch
type WebFetchOutput struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// Tool returns the web_fetch tool. A nil client uses a default one.
func Tool(client *http.Client) (agent.Tool, error) {
	if client == nil {
		client = &http.Client{}
	}
	return agent.NewGenericTool(Name, webFetchPrompt, makeWebFetchHandler(client))
}

func makeWebFetchHandler(base *http.Client) func(context.Context, WebFetchInput) (WebFetchOutput, error) {
	return func(ctx context.Context, input WebFetchInput) (WebFetchOutput, error) {
		logger := toolsutil.GetLogger()

		if !strings.HasPrefix(input.URL, "http://") && !strings.HasPrefix(input.URL, "https://") {
			return WebFetchOutput{}, fmt.Errorf("%w: URL must start with http:// or https://", toolsutil.ErrInvalidParams)
		}
		format := strings.ToLower(input.Format)
		if format == "" {
			format = "markdown"
		}
		if format != "text" && format != "markdown" && format != "html" {
			return WebFetchOutput{}, fmt.Errorf("%w: format must be one of text, markdown, html", toolsutil.ErrInvalidParams)
		}
		timeout := input.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		timeout = min(timeout, maxTimeout)

		client := *base
		client.Timeout = time.Duration(timeout) * time.Second
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
		if err != nil {
			return WebFetchOutput{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		resp, err := client.Do(req)
		if err != nil {
			return WebFetchOutput{}, fmt.Errorf("failed to fetch URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return WebFetchOutput{}, fmt.Errorf("request failed with status code: %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
		if err != nil {
			return WebFetchOutput{}, fmt.Errorf("failed to read response: %w", err)
		}
		truncated := len(body) > maxBodySize
		if truncated {
			body = body[:maxBodySize]
		}

		contentType := resp.Header.Get("Content-Type")
		content := render(string(body), contentType, format)

		logger.Info("fetched web content", "url", input.URL, "status", resp.StatusCode, "size", len(body), "format", format)
		return WebFetchOutput{
			URL:         resp.Request.URL.String(),
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Content:     content,
			Truncated:   truncated,
		}, nil
	}
}

func render(content, contentType, format string) string {
	isHTML := strings.Contains(contentType, "text/html")
	switch format {
	case "text":
		if !isHTML {
			return content
		}
		text, err := extractTextFromHTML(content)
		if err != nil {
			toolsutil.GetLogger().Warn("failed to extract text from HTML", "error", err)
			return content
		}
		return text
	case "markdown":
		switch {
		case isHTML:
			markdown, err := convertHTMLToMarkdown(content)
			if err != nil {
				toolsutil.GetLogger().Warn("failed to convert HTML to markdown", "error", err)
				return "```html\n" + content + "\n```"
			}
			return markdown
		case strings.Contains(contentType, "application/json"):
			return "```json\n" + content + "\n```"
		default:
			return content
		}
	}
	return content
}

func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	for strings.Contains(markdown, "\n\n\n") {
		markdown = strings.ReplaceAll(markdown, "\n\n\n", "\n\n")
	}
	return markdown, nil
}
