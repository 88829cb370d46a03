package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/text/encoding/htmlindex"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// RawMessage is the provider-neutral view of one mailbox message.
type RawMessage struct {
	ID       string
	ThreadID string
	Sender   string
	Subject  string
	Body     string
	Date     time.Time

	// Set by the reader's allow-list.
	Platform models.Platform
}

// Page is one page of message ids from a mailbox query.
type Page struct {
	IDs           []string
	NextPageToken string
}

// Source is the read-only mailbox capability the reader consumes.
type Source interface {
	List(ctx context.Context, query, pageToken string, pageSize int64) (Page, error)
	Get(ctx context.Context, id string) (RawMessage, error)
}

// SourceFactory opens a mailbox for an already refreshed token.
type SourceFactory func(ctx context.Context, tok *oauth2.Token) (Source, error)

// GmailSource reads the authenticated user's mailbox through the Gmail API.
type GmailSource struct {
	svc *gmail.Service
}

func NewGmailSource(svc *gmail.Service) *GmailSource {
	return &GmailSource{svc: svc}
}

// NewGmailSourceFactory builds Gmail sources; extra options (endpoint, HTTP
// client) are appended after the token source.
func NewGmailSourceFactory(opts ...option.ClientOption) SourceFactory {
	return func(ctx context.Context, tok *oauth2.Token) (Source, error) {
		all := append([]option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}, opts...)
		svc, err := gmail.NewService(ctx, all...)
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		return NewGmailSource(svc), nil
	}
}

func (g *GmailSource) List(ctx context.Context, query, pageToken string, pageSize int64) (Page, error) {
	call := g.svc.Users.Messages.List("me").Q(query).MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return Page{}, err
	}
	page := Page{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

func (g *GmailSource) Get(ctx context.Context, id string) (RawMessage, error) {
	msg, err := g.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return RawMessage{}, err
	}
	return parseGmailMessage(msg), nil
}

func parseGmailMessage(msg *gmail.Message) RawMessage {
	headers := parseHeaders(msg)
	raw := RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Sender:   headers["from"],
		Subject:  headers["subject"],
		Body:     getEmailBody(msg.Payload),
	}
	if msg.InternalDate > 0 {
		raw.Date = time.UnixMilli(msg.InternalDate).UTC()
	} else if d, err := mail.ParseDate(headers["date"]); err == nil {
		raw.Date = d.UTC()
	}
	if raw.Body == "" {
		raw.Body = msg.Snippet
	}
	return raw
}

// parseHeaders lower-cases header names; Gmail is not consistent about casing.
func parseHeaders(msg *gmail.Message) map[string]string {
	res := make(map[string]string)
	if msg.Payload == nil {
		return res
	}
	for _, h := range msg.Payload.Headers {
		res[strings.ToLower(h.Name)] = h.Value
	}
	return res
}

// getEmailBody prefers text/plain anywhere in the MIME tree and falls back
// to text/html converted to text.
func getEmailBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if plain := findPart(part, "text/plain"); plain != "" {
		return strings.TrimSpace(plain)
	}
	if html := findPart(part, "text/html"); html != "" {
		text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
		if err != nil {
			return strings.TrimSpace(html)
		}
		return strings.TrimSpace(text)
	}
	// single-part message without an explicit type
	if part.Body != nil && part.Body.Data != "" && len(part.Parts) == 0 {
		return strings.TrimSpace(partText(part))
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return partText(part)
	}
	for _, child := range part.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// partText decodes the part body and converts it from the charset named in
// its Content-Type. Unknown charsets pass through unchanged.
func partText(part *gmail.MessagePart) string {
	body := decodeBody(part.Body.Data)
	for _, h := range part.Headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			break
		}
		return decodeCharset(body, params["charset"])
	}
	return body
}

func decodeCharset(s, charset string) string {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
		return s
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return s
	}
	out, err := enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

// decodeBody handles Gmail's base64url payloads with or without padding.
func decodeBody(data string) string {
	d, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(d)
}
