package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/service/chat"
)

// ErrAbnormalClose 服务端未以正常关闭结束，输出不落盘
var ErrAbnormalClose = errors.New("connection closed abnormally")

var defaultPrompts = map[chat.Mode]string{
	chat.ModeDiagram:     "Generate a DFD for the entire application in Threagile YAML format",
	chat.ModeThreatModel: "Generate a STRIDE threat model for the entire application",
	chat.ModeResearch:    "How is authentication handled across the application?",
	chat.ModeAsk:         "Give an overview of the repository architecture",
}

type Options struct {
	Endpoint  string
	RepoURL   string
	RepoType  string
	Mode      chat.Mode
	Prompt    string
	OutputDir string
	Language  string
	Provider  string
	Model     string
	// Out 流式内容的输出位置，为空时使用 os.Stdout
	Out io.Writer
}

type Result struct {
	Text string
	Path string
}

// BuildRequest 按模式拼出带命令前缀的请求
func BuildRequest(opts Options) chat.Request {
	prompt := opts.Prompt
	if prompt == "" {
		prompt = defaultPrompts[opts.Mode]
	}
	content := prompt
	if opts.Mode != chat.ModeAsk {
		content = "/" + string(opts.Mode) + " " + prompt
	}
	repoType := opts.RepoType
	if repoType == "" {
		repoType = "github"
	}
	return chat.Request{
		RepoURL:  opts.RepoURL,
		Type:     repoType,
		Messages: []chat.Message{{Role: "user", Content: content}},
		Provider: opts.Provider,
		Model:    opts.Model,
		Language: opts.Language,
	}
}

// OutputPath <dir>/<repo>_<mode>_output.<ext>
func OutputPath(dir, repoURL string, mode chat.Mode) string {
	ext := "md"
	switch mode {
	case chat.ModeThreatModel:
		ext = "json"
	case chat.ModeDiagram:
		ext = "yaml"
	}
	name := domain.RepoNameFromURL(repoURL)
	if name == "" {
		name = "repo"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s_output.%s", name, mode, ext))
}

// Run 发送一次请求并打印流式帧；仅在正常关闭时写出文件
func Run(ctx context.Context, opts Options) (*Result, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if _, ok := defaultPrompts[opts.Mode]; !ok {
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Endpoint, err)
	}
	defer conn.Close()
	klog.V(6).Infof("[Probe.Run] connected: endpoint=%s, mode=%s", opts.Endpoint, opts.Mode)

	if err := conn.WriteJSON(BuildRequest(opts)); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var sb strings.Builder
	for {
		_, data, err := conn.ReadMessage()
		if err == nil {
			_, _ = out.Write(data)
			sb.Write(data)
			continue
		}
		result := &Result{Text: sb.String()}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return result, fmt.Errorf("%w: %v", ErrAbnormalClose, err)
		}
		path := OutputPath(opts.OutputDir, opts.RepoURL, opts.Mode)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return result, err
		}
		if err := os.WriteFile(path, []byte(result.Text), 0644); err != nil {
			return result, err
		}
		result.Path = path
		return result, nil
	}
}
