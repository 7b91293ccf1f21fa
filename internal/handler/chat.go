package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/pkg/llm"
	"github.com/opendeepwiki/deepresearch/internal/service/chat"
)

// 关闭帧的 reason 最多 123 字节
const maxCloseReason = 123

type ChatService interface {
	Handle(ctx context.Context, req chat.Request, onChunk llm.ChunkFunc) error
}

// ChatHandler /ws/chat：一次连接处理一个请求，按文本帧流式返回
type ChatHandler struct {
	service  ChatService
	upgrader websocket.Upgrader
}

func NewChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (h *ChatHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		klog.Errorf("[ChatHandler.Serve] websocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	var req chat.Request
	if err := conn.ReadJSON(&req); err != nil {
		h.fail(conn, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 客户端断开时取消生成
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	start := time.Now()
	err = h.service.Handle(ctx, req, func(chunk string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(chunk))
	})
	if err != nil {
		klog.Warningf("[ChatHandler.Serve] 请求失败: repo=%s, elapsed=%v, err=%v", req.RepoURL, time.Since(start), err)
		h.fail(conn, err)
		return
	}
	klog.V(6).Infof("[ChatHandler.Serve] 请求完成: repo=%s, elapsed=%v", req.RepoURL, time.Since(start))
	closeWith(conn, websocket.CloseNormalClosure, "")
}

// fail 先发送错误文本帧，再以 internal error 关闭
func (h *ChatHandler) fail(conn *websocket.Conn, err error) {
	msg := "Error: " + err.Error()
	if werr := conn.WriteMessage(websocket.TextMessage, []byte(msg)); werr != nil {
		klog.V(6).Infof("[ChatHandler.fail] 发送错误帧失败: %v", werr)
		return
	}
	reason := err.Error()
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	closeWith(conn, websocket.CloseInternalServerErr, reason)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		klog.V(6).Infof("[ChatHandler] 发送关闭帧失败: %v", err)
	}
}
