package adapters

import (
	"context"
	"strings"

	"github.com/BaSui01/voxflow/pipeline"
)

// KeywordChecker 命中任一屏蔽词即拒绝，大小写不敏感
type KeywordChecker struct {
	blocked []string
}

// NewKeywordChecker 创建关键词审查，空词被忽略
func NewKeywordChecker(blocked ...string) *KeywordChecker {
	words := make([]string, 0, len(blocked))
	for _, w := range blocked {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &KeywordChecker{blocked: words}
}

// Check 实现 pipeline.ContentChecker
func (c *KeywordChecker) Check(ctx context.Context, text string) (pipeline.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Verdict{}, err
	}
	lower := strings.ToLower(text)
	for _, w := range c.blocked {
		if strings.Contains(lower, w) {
			return pipeline.Verdict{Allowed: false, Reason: "blocked keyword: " + w}, nil
		}
	}
	return pipeline.Verdict{Allowed: true}, nil
}
