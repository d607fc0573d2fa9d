package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// RPCTrainer 通过 HTTP 调用外部向量训练服务，是 core.EmbeddingProvider 的实现。
//
// 请求格式（JSON）：
//
//	{"corpus": [["ITEM_1","ITEM_1","ITEM_7"], ...],
//	 "params": {"vector_size":128,"window":15,"epochs":20,"negative":15,"seed":42}}
//
// 响应格式（JSON）：
//
//	{"dimension": 128, "vectors": {"ITEM_1": [0.1, ...], ...}}
//
// 调用经过熔断器保护：连续失败达到阈值后直接拒绝，返回 UNAVAILABLE 领域错误。
type RPCTrainer struct {
	Endpoint string // 例如 "http://localhost:8090/train"
	Timeout  time.Duration
	Client   *http.Client

	cb *gobreaker.CircuitBreaker[*Word2VecModel]
}

var _ core.EmbeddingProvider = (*RPCTrainer)(nil)

// ErrTrainerUnavailable 表示训练服务不可用（熔断打开或调用失败）。
var ErrTrainerUnavailable = core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable, "model: embedding trainer unavailable")

// NewRPCTrainer 创建训练客户端；maxFailures 为触发熔断的连续失败次数。
func NewRPCTrainer(endpoint string, timeout time.Duration, maxFailures uint32) *RPCTrainer {
	if timeout == 0 {
		timeout = 30 * time.Minute
	}
	if maxFailures == 0 {
		maxFailures = 3
	}
	name := "embedding-trainer"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	t := &RPCTrainer{
		Endpoint: endpoint,
		Timeout:  timeout,
		Client:   &http.Client{Timeout: timeout},
	}
	t.cb = gobreaker.NewCircuitBreaker[*Word2VecModel](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log := logging.Component("model")
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return t
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (t *RPCTrainer) Name() string { return "rpc" }

type trainRequest struct {
	Corpus core.Corpus `json:"corpus"`
	Params trainParams `json:"params"`
}

type trainParams struct {
	VectorSize int   `json:"vector_size"`
	Window     int   `json:"window"`
	Epochs     int   `json:"epochs"`
	Negative   int   `json:"negative"`
	Seed       int64 `json:"seed"`
}

type trainResponse struct {
	Dimension int                  `json:"dimension"`
	Vectors   map[string][]float64 `json:"vectors"`
}

// Train 提交语料并返回训练得到的向量。
func (t *RPCTrainer) Train(ctx context.Context, corpus core.Corpus, params core.EmbeddingParams) (core.Embeddings, error) {
	m, err := t.cb.Execute(func() (*Word2VecModel, error) {
		return t.call(ctx, corpus, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrTrainerUnavailable, err)
		}
		return nil, err
	}
	return m, nil
}

func (t *RPCTrainer) call(ctx context.Context, corpus core.Corpus, params core.EmbeddingParams) (*Word2VecModel, error) {
	if t.Client == nil {
		t.Client = &http.Client{Timeout: t.Timeout}
	}

	body, err := json.Marshal(trainRequest{
		Corpus: corpus,
		Params: trainParams{
			VectorSize: params.VectorSize,
			Window:     params.Window,
			Epochs:     params.Epochs,
			Negative:   params.Negative,
			Seed:       params.Seed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("rpc error: status=%d, read body failed: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(msg))
	}

	var result trainResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Vectors) == 0 {
		return nil, fmt.Errorf("rpc error: empty vector table")
	}
	m := NewWord2VecModel(result.Vectors, result.Dimension)
	if params.VectorSize > 0 && m.Dim != params.VectorSize {
		return nil, fmt.Errorf("rpc error: dimension %d, expected %d", m.Dim, params.VectorSize)
	}
	return m, nil
}
