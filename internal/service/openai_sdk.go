package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// sdkOptions configures an openai-go client for the Responses and vector
// store endpoints. Retries are off: the pipeline retries at most once itself.
func sdkOptions(httpClient *http.Client, baseURL, apiKey string) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return opts
}

// sdkError maps an openai-go API error to an UpstreamError carrying the
// provider's status and message. Other errors are returned unchanged.
func sdkError(err error) error {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if msg == "" && apiErr.Response != nil {
		msg = errorBodyMessage(apiErr.Response.Body)
	}
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &UpstreamError{Status: apiErr.StatusCode, Message: msg}
}

// errorBodyMessage reads the message of an {"error":{"message":...}} body.
func errorBodyMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&env); err != nil {
		return ""
	}
	return env.Error.Message
}
