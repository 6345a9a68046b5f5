// Package social is a thin OAuth1-signed client for the X (Twitter) API.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/types"
)

// Twitter wraps the v2 REST API and the v1.1 media upload endpoint
type Twitter struct {
	http      *http.Client
	apiBase   string
	uploadURL string
	log       *zap.SugaredLogger
}

// NewTwitter creates a client whose requests are signed with the user's
// OAuth1 access token
func NewTwitter(cfg config.TwitterConfig, log *zap.Logger) *Twitter {
	oauthConfig := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)

	return &Twitter{
		http:      oauthConfig.Client(context.Background(), token),
		apiBase:   strings.TrimRight(cfg.APIBaseURL, "/"),
		uploadURL: cfg.UploadURL,
		log:       log.Named("social").Sugar(),
	}
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetMedia struct {
	MediaIDs      []string `json:"media_ids"`
	TaggedUserIDs []string `json:"tagged_user_ids,omitempty"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetData struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at"`
}

type userData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type mediaUploadResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

// Tweet publishes a text-only post and returns its id
func (t *Twitter) Tweet(ctx context.Context, text string) (string, error) {
	return t.createTweet(ctx, tweetRequest{Text: text}, "Tweet")
}

// TweetWithMedia publishes a post with one uploaded image attached.
// taggedUserID may be empty.
func (t *Twitter) TweetWithMedia(ctx context.Context, text, mediaID, taggedUserID string) (string, error) {
	media := &tweetMedia{MediaIDs: []string{mediaID}}
	if taggedUserID != "" {
		media.TaggedUserIDs = []string{taggedUserID}
	}
	return t.createTweet(ctx, tweetRequest{Text: text, Media: media}, "Tweet")
}

// Reply publishes text as a reply to the post inReplyToID
func (t *Twitter) Reply(ctx context.Context, inReplyToID, text string) (string, error) {
	if _, err := strconv.ParseUint(inReplyToID, 10, 64); err != nil {
		return "", fmt.Errorf("invalid tweet id %q: %w", inReplyToID, err)
	}
	req := tweetRequest{
		Text:  text,
		Reply: &tweetReply{InReplyToTweetID: inReplyToID},
	}
	return t.createTweet(ctx, req, "Reply")
}

func (t *Twitter) createTweet(ctx context.Context, body tweetRequest, kind string) (string, error) {
	var resp struct {
		Data   *tweetData   `json:"data"`
		Errors []apiProblem `json:"errors"`
	}
	if err := t.doJSON(ctx, http.MethodPost, t.apiBase+"/tweets", body, &resp); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", fmt.Errorf("post tweet: %w%s", types.ErrEmptyResponse, problems(resp.Errors))
	}

	t.log.Infow(kind+" posted successfully", "id", resp.Data.ID)
	return resp.Data.ID, nil
}

// UserID returns the id of the authenticated account
func (t *Twitter) UserID(ctx context.Context) (string, error) {
	var resp struct {
		Data   *userData    `json:"data"`
		Errors []apiProblem `json:"errors"`
	}
	if err := t.doJSON(ctx, http.MethodGet, t.apiBase+"/users/me", nil, &resp); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", fmt.Errorf("get user: %w%s", types.ErrEmptyResponse, problems(resp.Errors))
	}
	return resp.Data.ID, nil
}

// Mentions returns the first page of posts mentioning userID, newest first.
// A page without data yields an empty slice.
func (t *Twitter) Mentions(ctx context.Context, userID string) ([]types.Notification, error) {
	q := url.Values{}
	q.Set("tweet.fields", "author_id,created_at")
	endpoint := fmt.Sprintf("%s/users/%s/mentions?%s", t.apiBase, url.PathEscape(userID), q.Encode())

	var resp struct {
		Data []tweetData `json:"data"`
	}
	if err := t.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	notifications := make([]types.Notification, 0, len(resp.Data))
	for _, d := range resp.Data {
		n := types.Notification{ID: d.ID, Text: d.Text, AuthorID: d.AuthorID}
		if ts, err := parseTime(d.CreatedAt); err == nil {
			n.CreatedAt = ts
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// UploadMedia uploads raw image bytes and returns the media id
func (t *Twitter) UploadMedia(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "image")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to upload media: %s", resp.Status)
	}

	var media mediaUploadResponse
	if err := json.Unmarshal(body, &media); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	switch {
	case media.MediaIDString != "":
		return media.MediaIDString, nil
	case media.MediaID != 0:
		return strconv.FormatInt(media.MediaID, 10), nil
	default:
		return "", fmt.Errorf("upload media: %w", types.ErrEmptyResponse)
	}
}

// doJSON performs a signed request, failing on non-2xx statuses, and
// decodes the response body into out
func (t *Twitter) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call twitter API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twitter API %s %s returned status %d: %s", method, req.URL.Path, resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse twitter response: %w", err)
	}
	return nil
}

func problems(ps []apiProblem) string {
	if len(ps) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(ps))
	for _, p := range ps {
		msgs = append(msgs, strings.TrimSpace(p.Title+": "+p.Detail))
	}
	return " (" + strings.Join(msgs, "; ") + ")"
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
