// Package rpc speaks the engine's JSON-RPC 2.0 dialect over HTTP. The
// envelope types mirror the teacher's internal/api.JsonRpcRequest /
// JsonRpcResponse / RpcError (there built server-side over stdio for
// MCP); here they are used client-side over an HTTP POST, with a
// uuid-minted request id the way the teacher's own audit logger mints
// uuid.New() ids for each entry.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"burncloud-aria2/internal/aerrors"
)

type jsonRpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      string        `json:"id"`
}

type jsonRpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      string          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client calls the engine's JSON-RPC endpoint over HTTP.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a Client targeting the engine's RPC endpoint at host:port.
func New(host string, port int, secret string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   fmt.Sprintf("http://%s:%d/jsonrpc", host, port),
		secret:     secret,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Call invokes method with params, prefixing the engine's secret token
// as the first parameter the way aria2's RPC protocol requires, and
// decodes the raw result into out (which may be nil to discard it).
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	fullParams := append([]interface{}{"token:" + c.secret}, params...)

	reqBody := jsonRpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  fullParams,
		ID:      uuid.NewString(),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", aerrors.ErrSerialization, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", aerrors.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", aerrors.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", aerrors.ErrTransport, err)
	}

	var rpcResp jsonRpcResponse
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return fmt.Errorf("%w: %v", aerrors.ErrSerialization, err)
	}

	if rpcResp.Error != nil {
		return aerrors.NewRpcError(rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%w: %v", aerrors.ErrSerialization, err)
		}
	}

	return nil
}

// Ping calls the engine's lightweight liveness method, used by the
// readiness poll and by HealthMonitor's tick loop.
func (c *Client) Ping(ctx context.Context) error {
	var stat map[string]interface{}
	return c.Call(ctx, "aria2.getGlobalStat", nil, &stat)
}

// AddURI adds a download by URI list (http/https/ftp, or a magnet URI),
// returning the engine-assigned GID.
func (c *Client) AddURI(ctx context.Context, uris []string, options map[string]string) (string, error) {
	params := []interface{}{uris}
	if len(options) > 0 {
		params = append(params, options)
	}
	var gid string
	if err := c.Call(ctx, "aria2.addUri", params, &gid); err != nil {
		return "", err
	}
	return gid, nil
}

// AddTorrent adds a download from a base64-encoded .torrent file body.
func (c *Client) AddTorrent(ctx context.Context, torrentBase64 string, options map[string]string) (string, error) {
	params := []interface{}{torrentBase64}
	if len(options) > 0 {
		params = append(params, []string{}, options)
	}
	var gid string
	if err := c.Call(ctx, "aria2.addTorrent", params, &gid); err != nil {
		return "", err
	}
	return gid, nil
}

// AddMetalink adds a download from a base64-encoded .metalink file body.
func (c *Client) AddMetalink(ctx context.Context, metalinkBase64 string, options map[string]string) (string, error) {
	params := []interface{}{metalinkBase64}
	if len(options) > 0 {
		params = append(params, options)
	}
	var result []string
	if err := c.Call(ctx, "aria2.addMetalink", params, &result); err != nil {
		return "", err
	}
	if len(result) == 0 {
		return "", fmt.Errorf("%w: engine returned no gid", aerrors.ErrTransport)
	}
	return result[0], nil
}

// Pause pauses the download identified by gid.
func (c *Client) Pause(ctx context.Context, gid string) error {
	return c.Call(ctx, "aria2.pause", []interface{}{gid}, nil)
}

// Unpause resumes the download identified by gid.
func (c *Client) Unpause(ctx context.Context, gid string) error {
	return c.Call(ctx, "aria2.unpause", []interface{}{gid}, nil)
}

// Remove cancels the download identified by gid.
func (c *Client) Remove(ctx context.Context, gid string) error {
	return c.Call(ctx, "aria2.remove", []interface{}{gid}, nil)
}

// StatusFields is the subset of aria2.tellStatus's result this module
// consumes.
type StatusFields struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	DownloadSpeed   string `json:"downloadSpeed"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
	Dir             string `json:"dir"`
	Files           []struct {
		Path string `json:"path"`
	} `json:"files"`
}

// TellStatus fetches the current status of the download identified by gid.
func (c *Client) TellStatus(ctx context.Context, gid string) (*StatusFields, error) {
	var status StatusFields
	if err := c.Call(ctx, "aria2.tellStatus", []interface{}{gid}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TellActive lists all currently active (downloading) tasks.
func (c *Client) TellActive(ctx context.Context) ([]StatusFields, error) {
	var statuses []StatusFields
	if err := c.Call(ctx, "aria2.tellActive", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// TellWaiting lists up to count queued-but-not-active tasks starting at offset.
func (c *Client) TellWaiting(ctx context.Context, offset, count int) ([]StatusFields, error) {
	var statuses []StatusFields
	if err := c.Call(ctx, "aria2.tellWaiting", []interface{}{offset, count}, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// TellStopped lists up to count completed/errored/removed tasks
// starting at offset.
func (c *Client) TellStopped(ctx context.Context, offset, count int) ([]StatusFields, error) {
	var statuses []StatusFields
	if err := c.Call(ctx, "aria2.tellStopped", []interface{}{offset, count}, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}
