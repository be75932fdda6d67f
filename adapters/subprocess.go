package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Placeholders
const (
	PlaceholderText   = "{text}"
	PlaceholderPrompt = "{prompt}"
	PlaceholderOutput = "{output}"
	PlaceholderFile   = "{file}"
)

// 进程退出后等待输出管道关闭的上限，防止孙进程占住管道
const processWaitDelay = 2 * time.Second

// ErrEmptyCommand 命令模板为空
var ErrEmptyCommand = errors.New("command template is empty")

// Command 一条 argv 模板
type Command []string

// Has 模板是否包含占位符
func (c Command) Has(placeholder string) bool {
	for _, arg := range c {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// Expand 替换占位符，返回新的 argv。参数不经过 shell。
func (c Command) Expand(vars map[string]string) ([]string, error) {
	if len(c) == 0 || c[0] == "" {
		return nil, ErrEmptyCommand
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)

	argv := make([]string, len(c))
	for i, arg := range c {
		argv[i] = r.Replace(arg)
	}
	return argv, nil
}

// Runner 子进程执行器：标准输入在启动前准备好，超时统一由 ctx 控制
type Runner struct {
	timeout time.Duration
}

// NewRunner 创建执行器，timeout <= 0 时不额外限时
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

func (r *Runner) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if r == nil || r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Run 执行命令并返回标准输出
func (r *Runner) Run(ctx context.Context, argv []string, stdin string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	ctx, cancel := r.context(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = processWaitDelay

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out: %w", argv[0], ctxErr)
		}
		return nil, fmt.Errorf("%s cancelled: %w", argv[0], ctxErr)
	}
	if err != nil {
		return nil, processError(argv[0], err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func processError(name string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr != "" {
		return fmt.Errorf("%s failed: %w\nstderr: %s", name, err, stderr)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

// CheckBinary 检查模板里的程序是否在 PATH 中
func CheckBinary(c Command) error {
	if len(c) == 0 || c[0] == "" {
		return ErrEmptyCommand
	}
	if _, err := exec.LookPath(c[0]); err != nil {
		return fmt.Errorf("binary %q not found in PATH: %w", c[0], err)
	}
	return nil
}
