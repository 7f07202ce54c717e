package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"strings"
	"sync/atomic"
	"unicode"

	"medimate-go/internal/model"
)

// bowEmbedder 是基于词袋哈希的确定性 Embedding，共享词越多的文本越相似。
type bowEmbedder struct {
	dims  int
	calls atomic.Int32
	err   error
}

func newBowEmbedder() *bowEmbedder { return &bowEmbedder{dims: 64} }

func (e *bowEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *bowEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *bowEmbedder) Model() string { return "bow" }

func (e *bowEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dims)]++
	}
	return v
}

type fakeExtractor struct {
	pages []model.DocumentPage
	err   error
}

func (f *fakeExtractor) ExtractPages(_ context.Context, r io.Reader, _ string) ([]model.DocumentPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return f.pages, nil
}

// textExtractor 把上传内容本身当作单页文本。
type textExtractor struct{}

func (textExtractor) ExtractPages(_ context.Context, r io.Reader, _ string) ([]model.DocumentPage, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(string(b), "CORRUPT") {
		return nil, errors.New("unreadable document")
	}
	return []model.DocumentPage{{Number: 1, Text: string(b)}}, nil
}
