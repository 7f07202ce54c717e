package handler

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"unicode"

	"medimate-go/internal/model"
	"medimate-go/pkg/llm"
)

type bowEmbedder struct{}

func (bowEmbedder) vector(text string) []float32 {
	v := make([]float32, 64)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%64]++
	}
	return v
}

func (e *bowEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *bowEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *bowEmbedder) Model() string { return "bow" }

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

// scriptedLLM 返回固定回答，流式调用时依次写出 chunks。
type scriptedLLM struct {
	mu     sync.Mutex
	calls  int
	answer string
	chunks []string
	err    error
}

func (s *scriptedLLM) ChatMessages(_ context.Context, _ []llm.Message, _ *llm.GenerationParams) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *scriptedLLM) StreamChatMessages(_ context.Context, _ []llm.Message, _ *llm.GenerationParams, w llm.MessageWriter) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, c := range s.chunks {
		if err := w.WriteMessage(1, []byte(c)); err != nil {
			return err
		}
	}
	return nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memoryMedicineRepo struct {
	mu      sync.Mutex
	records map[string]model.MedicineRecord
}

func (r *memoryMedicineRepo) FindAll(_ context.Context) ([]model.MedicineRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MedicineRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryMedicineRepo) FindByID(_ context.Context, id string) (*model.MedicineRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memoryMedicineRepo) Upsert(_ context.Context, rec model.MedicineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return nil
}
