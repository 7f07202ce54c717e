package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"medimate-go/internal/model"
	"medimate-go/pkg/llm"
)

// bowEmbedder 是基于词袋哈希的确定性 Embedding。
type bowEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *bowEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return bowVector(text), nil
}

func (e *bowEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bowVector(t)
	}
	return out, nil
}

func (e *bowEmbedder) Model() string { return "bow" }

func bowVector(text string) []float32 {
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

// fakeLLM 记录每次调用的消息，并返回固定回答。
type fakeLLM struct {
	mu     sync.Mutex
	calls  [][]llm.Message
	params []*llm.GenerationParams
	answer string
	chunks []string
	err    error
}

func (f *fakeLLM) record(msgs []llm.Message, gen *llm.GenerationParams) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	f.params = append(f.params, gen)
}

func (f *fakeLLM) ChatMessages(_ context.Context, msgs []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.record(msgs, gen)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, msgs []llm.Message, gen *llm.GenerationParams, w llm.MessageWriter) error {
	f.record(msgs, gen)
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := w.WriteMessage(1, []byte(c)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeMedicineRepo 是内存中的目录存储，failIDs 中的 _id 查询时返回错误。
type fakeMedicineRepo struct {
	mu      sync.Mutex
	records map[string]model.MedicineRecord
	failIDs map[string]bool
	lookups []string
}

func newFakeMedicineRepo(records ...model.MedicineRecord) *fakeMedicineRepo {
	r := &fakeMedicineRepo{records: map[string]model.MedicineRecord{}, failIDs: map[string]bool{}}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *fakeMedicineRepo) FindAll(_ context.Context) ([]model.MedicineRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MedicineRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeMedicineRepo) FindByID(_ context.Context, id string) (*model.MedicineRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, id)
	if r.failIDs[id] {
		return nil, errors.New("connection reset")
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakeMedicineRepo) Upsert(_ context.Context, rec model.MedicineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return nil
}

// wsRecorder 记录写入 websocket 的消息。
type wsRecorder struct {
	messages []string
}

func (w *wsRecorder) WriteMessage(_ int, data []byte) error {
	w.messages = append(w.messages, string(data))
	return nil
}

func medicine(id, name string) model.MedicineRecord {
	return model.MedicineRecord{ID: id, Fields: map[string]interface{}{"name": name}}
}
