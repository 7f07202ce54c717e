package pipeline

// Span 是文本中一段左闭右开的 rune 区间。
type Span struct {
	Start int
	End   int
}

// Splitter 把文本切成长度不超过 size 的窗口，相邻窗口重叠 overlap 个 rune。
// 窗口优先在 separators 中靠前的分隔符之后断开，找不到可用分隔符时硬切。
type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

// Option 配置 Splitter。
type Option func(*Splitter)

// WithChunkSize 设置窗口的最大 rune 数。
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithOverlap 设置相邻窗口的重叠 rune 数。
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithSeparators 按优先级设置分隔符。空字符串表示硬切，无需显式给出。
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		s.separators = s.separators[:0]
		for _, sep := range separators {
			if sep != "" {
				s.separators = append(s.separators, []rune(sep))
			}
		}
	}
}

// NewSplitter 创建一个 Splitter，默认窗口 1000、无重叠、按换行断开。
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{size: 1000, separators: [][]rune{[]rune("\n")}}
	for _, opt := range opts {
		opt(s)
	}
	// 重叠不小于窗口时无法前进
	if s.overlap >= s.size {
		s.overlap = s.size - 1
	}
	return s
}

// Split 返回覆盖整个文本的窗口序列，结果只依赖输入与配置。
func (s *Splitter) Split(text string) []Span {
	return s.SplitRunes([]rune(text))
}

// SplitRunes 与 Split 相同，但直接接受 rune 切片。
func (s *Splitter) SplitRunes(runes []rune) []Span {
	n := len(runes)
	if n == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for {
		end := start + s.size
		if end >= n {
			spans = append(spans, Span{Start: start, End: n})
			return spans
		}
		cut := s.findCut(runes, start, end)
		spans = append(spans, Span{Start: start, End: cut})
		start = cut - s.overlap
	}
}

// findCut 在 (start+overlap, end] 内寻找最靠后的分隔符断点，保证下一个窗口向前推进。
func (s *Splitter) findCut(runes []rune, start, end int) int {
	minCut := start + s.overlap
	for _, sep := range s.separators {
		ls := len(sep)
		for p := end - ls; p >= start && p+ls > minCut; p-- {
			if matchAt(runes, p, sep) {
				return p + ls
			}
		}
	}
	return end
}

func matchAt(runes []rune, p int, sep []rune) bool {
	for i, r := range sep {
		if runes[p+i] != r {
			return false
		}
	}
	return true
}
