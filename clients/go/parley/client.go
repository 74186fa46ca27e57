// Package parley provides a client for the parley chat API.
package parley

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a parley API client. Call Login (or SetToken) before using
// authenticated endpoints.
type Client struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// NewClient creates a new parley client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs a previously obtained access token.
func (c *Client) SetToken(token string) {
	c.AccessToken = token
}

// doRequest performs an HTTP request, attaching the bearer token when set.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("parley error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// User represents a registered user.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile,omitempty"`
}

// AuthResponse is the response from signup and login.
type AuthResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
}

// Signup registers a new account and stores the returned token.
func (c *Client) Signup(name, email, mobile, password string) (*AuthResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"name":     name,
		"email":    email,
		"mobile":   mobile,
		"password": password,
	})

	respBody, err := c.doRequest("POST", "/signup", body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.AccessToken = resp.AccessToken
	return &resp, nil
}

// Login authenticates and stores the returned token.
func (c *Client) Login(email, password string) (*AuthResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	respBody, err := c.doRequest("POST", "/login", body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.AccessToken = resp.AccessToken
	return &resp, nil
}

// ListUsers returns every other registered user.
func (c *Client) ListUsers() ([]User, error) {
	respBody, err := c.doRequest("GET", "/users", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// FileRef points at an uploaded attachment.
type FileRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Message represents a chat message.
type Message struct {
	ID        string   `json:"id"`
	ChatID    string   `json:"chat_id"`
	SenderID  string   `json:"sender_id"`
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	File      *FileRef `json:"file,omitempty"`
	IsRead    bool     `json:"is_read"`
	Timestamp int64    `json:"ts"`
}

// Chat represents a conversation.
type Chat struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"created_at"`
}

// ChatSummary is a chat with inbox metadata.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int64    `json:"unread_count"`
}

// CreateChat starts (or returns) the one-to-one chat with another user.
func (c *Client) CreateChat(userID string) (*Chat, error) {
	body, _ := json.Marshal(map[string]string{"userId": userID})

	respBody, err := c.doRequest("POST", "/chats", body)
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateGroupChat creates a named group with the given members.
func (c *Client) CreateGroupChat(name string, userIDs []string) (*Chat, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"name":    name,
		"userIds": userIDs,
	})

	respBody, err := c.doRequest("POST", "/chats/group", body)
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns the caller's conversations, most recent first.
func (c *Client) ListChats() ([]ChatSummary, error) {
	respBody, err := c.doRequest("GET", "/chats", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Chats []ChatSummary `json:"chats"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// GetMessages retrieves a page of messages from a chat, newest first.
func (c *Client) GetMessages(chatID string, limit int, before int64) ([]Message, error) {
	path := fmt.Sprintf("/chats/%s/messages?limit=%d", chatID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
