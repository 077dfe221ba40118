package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// ========================================
// Announcer - 播报中继
// ========================================

const (
	announceTimeout  = 5 * time.Second
	announceQueueLen = 16
)

// RelayAnnouncer 把播报文本 POST 到 announce_url; 未配置时只写日志
// Announce 从不阻塞, 队列满时丢弃
type RelayAnnouncer struct {
	url    func() string
	client *http.Client
	queue  chan string

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRelayAnnouncer url 每次发送时读取, 设置修改即时生效
func NewRelayAnnouncer(url func() string) *RelayAnnouncer {
	a := &RelayAnnouncer{
		url:    url,
		client: &http.Client{Timeout: announceTimeout},
		queue:  make(chan string, announceQueueLen),
		done:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

// Announce 实现 engine.Announcer
func (a *RelayAnnouncer) Announce(text string) {
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.queue <- text:
	default:
		LogWarn("announce").Str("text", text).Msg("Announce queue full, dropped")
	}
}

func (a *RelayAnnouncer) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case text := <-a.queue:
			url := a.url()
			if url == "" {
				LogInfo("announce").Str("text", text).Msg("Announce")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
			if err := a.post(ctx, url, text); err != nil {
				LogWarn("announce").Err(err).Msg("Announce relay failed")
			}
			cancel()
		}
	}
}

// post 发送 {"text": ...}; 中继返回 JSON 时检查 ok / error 字段
func (a *RelayAnnouncer) post(ctx context.Context, url, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("announce: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("announce: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("announce: relay returned %d: %s", resp.StatusCode, string(respBody))
	}
	if gjson.ValidBytes(respBody) {
		if ok := gjson.GetBytes(respBody, "ok"); ok.Exists() && !ok.Bool() {
			return fmt.Errorf("announce: relay rejected: %s", gjson.GetBytes(respBody, "error").String())
		}
	}
	return nil
}

// Close 停止后台发送, 未发出的播报被丢弃
func (a *RelayAnnouncer) Close() {
	a.once.Do(func() { close(a.done) })
	a.wg.Wait()
}
