package model

// DocumentPage 是从上传文档中提取的一页文本，Number 从 1 开始。
type DocumentPage struct {
	Number int
	Text   string
}

// TextChunk 是文档文本中一段连续、有界的切片。
// Start 与 End 是该页文本中的 rune 偏移，区间左闭右开。
type TextChunk struct {
	Page  int    `json:"page"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}
