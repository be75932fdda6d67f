package pipeline

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// DefaultTerminators 默认断句符。ASCII 句点不在其中，避免把小数和缩写切开。
var DefaultTerminators = []rune{',', '，', '。', '！', '？', '!', '?'}

// SegmenterOption 配置 Segmenter
type SegmenterOption func(*Segmenter)

// WithTerminators 替换断句符集合
func WithTerminators(terminators ...rune) SegmenterOption {
	return func(s *Segmenter) {
		s.terminators = make(map[rune]struct{}, len(terminators))
		for _, r := range terminators {
			s.terminators[r] = struct{}{}
		}
	}
}

// Segmenter 把增量 token 流切分成可朗读的句子。
//
// 已发出的句子拼起来始终是累计文本的前缀，所以只需要保留尚未发出的
// 尾部：新到的增量追加到尾部后，从左到右找第一个断句符，切下（含断句符）
// 发出，再在同一次更新的剩余部分里继续找。
type Segmenter struct {
	terminators map[rune]struct{}
	pending     strings.Builder
	emitted     int
}

// NewSegmenter 创建断句器
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{}
	WithTerminators(DefaultTerminators...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Segmenter) isTerminator(r rune) bool {
	_, ok := s.terminators[r]
	return ok
}

// Feed 追加一个增量并返回本次能切出的全部句子（可能为空）
func (s *Segmenter) Feed(delta string) []string {
	if delta == "" {
		return nil
	}
	s.pending.WriteString(delta)

	rest := s.pending.String()
	var out []string
	for {
		idx := strings.IndexFunc(rest, s.isTerminator)
		if idx < 0 {
			break
		}
		_, size := utf8.DecodeRuneInString(rest[idx:])
		out = append(out, rest[:idx+size])
		rest = rest[idx+size:]
	}

	if len(out) > 0 {
		s.pending.Reset()
		s.pending.WriteString(rest)
		s.emitted += len(out)
	}
	return out
}

// Flush 在流结束时取出剩余的非空文本
func (s *Segmenter) Flush() (string, bool) {
	rest := s.pending.String()
	s.pending.Reset()
	if rest == "" {
		return "", false
	}
	s.emitted++
	return rest, true
}

// Emitted 返回已发出的句子数
func (s *Segmenter) Emitted() int {
	return s.emitted
}

// Sentences 惰性地把增量序列转换成句子序列，最后恰好产出一次结束哨兵。
// 消费方提前停止时不会再产出哨兵。
func Sentences(deltas iter.Seq[string], opts ...SegmenterOption) iter.Seq[Item[string]] {
	return func(yield func(Item[string]) bool) {
		seg := NewSegmenter(opts...)
		for delta := range deltas {
			for _, sentence := range seg.Feed(delta) {
				if !yield(ValueItem(sentence)) {
					return
				}
			}
		}
		if rest, ok := seg.Flush(); ok {
			if !yield(ValueItem(rest)) {
				return
			}
		}
		yield(EndItem[string]())
	}
}
