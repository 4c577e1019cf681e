// Package board proxies an external kanban board whose card titles embed
// numeric order identifiers ("# 1234"). The command layer addresses cards
// purely by that order number; card ids never leave this package's callers.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 15 * time.Second

	// maxAttachmentBytes is the upload cap the board's free tier enforces.
	maxAttachmentBytes = 10 << 20

	// attachmentPairingWindow bounds how far apart an attachment and a
	// comment may be created and still be shown together. The board API
	// has no direct comment-to-attachment link.
	attachmentPairingWindow = 5 * time.Minute
)

var (
	// ErrOrderNotFound indicates no card on the board carries the order number.
	ErrOrderNotFound = errors.New("board: order not found")
	// ErrNotConfigured indicates board credentials were not supplied.
	ErrNotConfigured = errors.New("board: client not configured")
	// ErrAttachmentTooLarge indicates the upload exceeds the board's size cap.
	ErrAttachmentTooLarge = errors.New("board: attachment exceeds the 10 MB size limit")
	// ErrEmptyComment indicates neither comment text nor an attachment was given.
	ErrEmptyComment = errors.New("board: comment text or attachment required")

	orderPattern = regexp.MustCompile(`#\s*(\d+)`)
)

// List is a column on the board.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Card is a single board card.
type Card struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ListID string `json:"idList"`
}

// Comment is one comment action on a card, newest first as the API returns
// them, together with the attachments created around the same time.
type Comment struct {
	Author      string
	Text        string
	At          time.Time
	Attachments []Attachment
}

// Attachment is a file attached to a card.
type Attachment struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	URL  string    `json:"url"`
	Date time.Time `json:"date"`
}

// AttachmentUpload carries a file to be attached to a card.
type AttachmentUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// CommentInput is the payload of an order comment: text, an attachment, or
// both. An uploaded attachment is linked from the comment text.
type CommentInput struct {
	Text       string
	Attachment *AttachmentUpload
}

// OrderCard is a card resolved by order number together with its list.
type OrderCard struct {
	Card     Card
	ListID   string
	ListName string
}

// ClientConfig carries the board API credentials.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Token      string
	BoardID    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the board's REST API.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	boardID string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient validates the credentials and returns a board client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.BoardID) == "" {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("board: base URL required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		token:   cfg.Token,
		boardID: cfg.BoardID,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// Lists returns the board's columns.
func (c *Client) Lists(ctx context.Context) ([]List, error) {
	var lists []List
	path := fmt.Sprintf("/boards/%s/lists", url.PathEscape(c.boardID))
	if err := c.get(ctx, path, nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// FindOrder locates the card whose title carries the order number. Titles
// are matched on the exact number extracted from the "#<digits>" pattern,
// never on substrings.
func (c *Client) FindOrder(ctx context.Context, orderNum int) (OrderCard, error) {
	lists, err := c.Lists(ctx)
	if err != nil {
		return OrderCard{}, err
	}
	for _, list := range lists {
		var cards []Card
		path := fmt.Sprintf("/lists/%s/cards", url.PathEscape(list.ID))
		if err := c.get(ctx, path, nil, &cards); err != nil {
			return OrderCard{}, err
		}
		for _, card := range cards {
			if cardOrderNumber(card.Name) == orderNum {
				return OrderCard{Card: card, ListID: list.ID, ListName: list.Name}, nil
			}
		}
	}
	return OrderCard{}, fmt.Errorf("%w: order %d", ErrOrderNotFound, orderNum)
}

// MoveResult describes a completed card move.
type MoveResult struct {
	CardName string
	FromList string
	ToList   string
}

// MoveOrder moves the order's card to the target list.
func (c *Client) MoveOrder(ctx context.Context, orderNum int, targetListID, targetListName string) (MoveResult, error) {
	located, err := c.FindOrder(ctx, orderNum)
	if err != nil {
		return MoveResult{}, err
	}
	path := fmt.Sprintf("/cards/%s", url.PathEscape(located.Card.ID))
	params := url.Values{"idList": {targetListID}}
	if err := c.send(ctx, http.MethodPut, path, params); err != nil {
		return MoveResult{}, err
	}
	c.logger.Info("order moved",
		zap.Int("order", orderNum),
		zap.String("from", located.ListName),
		zap.String("to", targetListName))
	return MoveResult{
		CardName: located.Card.Name,
		FromList: located.ListName,
		ToList:   targetListName,
	}, nil
}

type commentAction struct {
	Date          time.Time `json:"date"`
	MemberCreator struct {
		FullName string `json:"fullName"`
	} `json:"memberCreator"`
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
}

// LatestComments returns up to limit comment actions for the order, newest
// first. Card attachments created within the pairing window of a comment are
// surfaced on that comment.
func (c *Client) LatestComments(ctx context.Context, orderNum, limit int) ([]Comment, error) {
	located, err := c.FindOrder(ctx, orderNum)
	if err != nil {
		return nil, err
	}
	var actions []commentAction
	path := fmt.Sprintf("/cards/%s/actions", url.PathEscape(located.Card.ID))
	params := url.Values{"filter": {"commentCard"}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, path, params, &actions); err != nil {
		return nil, err
	}

	attachments, err := c.cardAttachments(ctx, located.Card.ID)
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(actions))
	for _, action := range actions {
		comments = append(comments, Comment{
			Author:      action.MemberCreator.FullName,
			Text:        action.Data.Text,
			At:          action.Date,
			Attachments: attachmentsNear(attachments, action.Date),
		})
	}
	return comments, nil
}

func (c *Client) cardAttachments(ctx context.Context, cardID string) ([]Attachment, error) {
	var attachments []Attachment
	path := fmt.Sprintf("/cards/%s/attachments", url.PathEscape(cardID))
	if err := c.get(ctx, path, nil, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

func attachmentsNear(attachments []Attachment, at time.Time) []Attachment {
	var near []Attachment
	for _, attachment := range attachments {
		delta := attachment.Date.Sub(at)
		if delta < 0 {
			delta = -delta
		}
		if delta <= attachmentPairingWindow {
			near = append(near, attachment)
		}
	}
	return near
}

// AddComment posts a comment on the order's card. An attachment, when
// present, is uploaded first and linked from the comment text; an
// attachment-only input produces a comment carrying just the link.
func (c *Client) AddComment(ctx context.Context, orderNum int, input CommentInput) error {
	text := strings.TrimSpace(input.Text)
	if text == "" && input.Attachment == nil {
		return ErrEmptyComment
	}
	located, err := c.FindOrder(ctx, orderNum)
	if err != nil {
		return err
	}

	if input.Attachment != nil {
		uploaded, err := c.uploadAttachment(ctx, located.Card.ID, *input.Attachment)
		if err != nil {
			return err
		}
		link := fmt.Sprintf("![%s](%s)", uploaded.Name, uploaded.URL)
		if text == "" {
			text = "Attachment: " + link
		} else {
			text += "\n" + link
		}
	}

	path := fmt.Sprintf("/cards/%s/actions/comments", url.PathEscape(located.Card.ID))
	return c.send(ctx, http.MethodPost, path, url.Values{"text": {text}})
}

func (c *Client) uploadAttachment(ctx context.Context, cardID string, upload AttachmentUpload) (Attachment, error) {
	if len(upload.Data) > maxAttachmentBytes {
		return Attachment{}, fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, len(upload.Data))
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, upload.FileName))
	if upload.ContentType != "" {
		header.Set("Content-Type", upload.ContentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return Attachment{}, fmt.Errorf("board: build upload: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return Attachment{}, fmt.Errorf("board: build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Attachment{}, fmt.Errorf("board: build upload: %w", err)
	}

	path := fmt.Sprintf("/cards/%s/attachments", url.PathEscape(cardID))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), &body)
	if err != nil {
		return Attachment{}, err
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := c.http.Do(request)
	if err != nil {
		return Attachment{}, fmt.Errorf("board: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Attachment{}, c.statusError(path, response)
	}
	var uploaded Attachment
	if err := json.NewDecoder(response.Body).Decode(&uploaded); err != nil {
		return Attachment{}, fmt.Errorf("board: decode %s: %w", path, err)
	}
	c.logger.Info("attachment uploaded",
		zap.String("card", cardID),
		zap.String("name", uploaded.Name))
	return uploaded, nil
}

// SetDueDate sets or replaces the due date on the order's card. The instant
// is sent as UTC, matching how the board API stores due stamps.
func (c *Client) SetDueDate(ctx context.Context, orderNum int, due time.Time) error {
	located, err := c.FindOrder(ctx, orderNum)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/cards/%s", url.PathEscape(located.Card.ID))
	return c.send(ctx, http.MethodPut, path, url.Values{"due": {due.UTC().Format(time.RFC3339)}})
}

func cardOrderNumber(title string) int {
	match := orderPattern.FindStringSubmatch(title)
	if match == nil {
		return -1
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return value
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, params), http.NoBody)
	if err != nil {
		return err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("board: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return c.statusError(path, response)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("board: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values) error {
	request, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, params), http.NoBody)
	if err != nil {
		return err
	}
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("board: request failed: %w", err)
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body) //nolint:errcheck

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return c.statusError(path, response)
	}
	return nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	values := url.Values{}
	for key, value := range params {
		values[key] = value
	}
	values.Set("key", c.apiKey)
	values.Set("token", c.token)
	return c.baseURL + path + "?" + values.Encode()
}

func (c *Client) statusError(path string, response *http.Response) error {
	c.logger.Warn("board API error",
		zap.String("path", path),
		zap.Int("status", response.StatusCode))
	return fmt.Errorf("board: %s returned %s", path, response.Status)
}
