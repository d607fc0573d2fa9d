package model

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// FileProvider 从 word2vec 文本格式文件加载预训练向量：
//
//	<count> <dimension>          （可选头部）
//	ITEM_1 0.12 -0.03 ...
//
// 它忽略传入的语料，适用于离线训练好的向量或测试。
type FileProvider struct {
	Path string
}

var (
	_ core.EmbeddingProvider = (*FileProvider)(nil)
	_ Word2VecLoader         = (*FileProvider)(nil)
)

func (p *FileProvider) Name() string { return "file" }

// Train 返回 Path 中的向量。维度与 params.VectorSize 不一致时返回错误。
func (p *FileProvider) Train(ctx context.Context, _ core.Corpus, params core.EmbeddingParams) (core.Embeddings, error) {
	m, err := p.Load(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	if params.VectorSize > 0 && m.Dim != params.VectorSize {
		return nil, fmt.Errorf("vector file %s: dimension %d, expected %d", p.Path, m.Dim, params.VectorSize)
	}
	log := logging.Component("model")
	log.Info().Str("path", p.Path).Int("tokens", len(m.WordVectors)).Int("window", params.Window).Msg("loaded pretrained vectors")
	return m, nil
}

// Load 实现 Word2VecLoader。
func (p *FileProvider) Load(ctx context.Context, source string) (*Word2VecModel, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()
	return ReadWord2VecText(ctx, f)
}

// ReadWord2VecText 解析 word2vec 文本格式。
func ReadWord2VecText(ctx context.Context, r io.Reader) (*Word2VecModel, error) {
	vectors := make(map[string][]float64)
	dim := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		// 头部：两个整数
		if line == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				if d, err := strconv.Atoi(fields[1]); err == nil {
					dim = d
					continue
				}
			}
		}
		vec := make([]float64, 0, len(fields)-1)
		for _, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse %q: %w", line, s, err)
			}
			vec = append(vec, v)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("line %d: dimension %d, expected %d", line, len(vec), dim)
		}
		vectors[fields[0]] = vec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vector file: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no valid vectors found")
	}
	return NewWord2VecModel(vectors, dim), nil
}

// WriteWord2VecText 以文本格式写出向量（带头部），token 按给定顺序输出。
func WriteWord2VecText(w io.Writer, emb core.Embeddings, tokens []string) error {
	bw := bufio.NewWriter(w)
	var rows []string
	for _, tok := range tokens {
		vec, ok := emb.Vector(tok)
		if !ok {
			continue
		}
		parts := make([]string, 0, len(vec)+1)
		parts = append(parts, tok)
		for _, v := range vec {
			parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rows = append(rows, strings.Join(parts, " "))
	}
	if _, err := fmt.Fprintf(bw, "%d %d\n", len(rows), emb.Dimension()); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := bw.WriteString(row + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
